package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/model"
)

// Architecture naming modes.
const (
	// NamingPerVariant labels each variant independently: <model>_crf, <model>_linear.
	NamingPerVariant = "per_variant"
	// NamingCumulative keeps appending head names across variants:
	// <model>_crf, then <model>_crf_linear.
	NamingCumulative = "cumulative"
)

// Config holds the full application configuration.
type Config struct {
	Models   map[string]string               `yaml:"models" mapstructure:"models"`
	Metrics  map[string]model.MetricSelector `yaml:"metrics" mapstructure:"metrics"`
	Training TrainingConfig                  `yaml:"training" mapstructure:"training"`
	CV       CVConfig                        `yaml:"cv" mapstructure:"cv"`
	Paths    PathsConfig                     `yaml:"paths" mapstructure:"paths"`
	Corpus   CorpusConfig                    `yaml:"corpus" mapstructure:"corpus"`
	Trainer  TrainerConfig                   `yaml:"trainer" mapstructure:"trainer"`
	Store    StoreConfig                     `yaml:"store" mapstructure:"store"`
	Summary  SummaryConfig                   `yaml:"summary" mapstructure:"summary"`
	Log      LogConfig                       `yaml:"log" mapstructure:"log"`
}

// TrainingConfig holds the fine-tuning hyperparameters handed to the trainer.
type TrainingConfig struct {
	MaxLength            int     `yaml:"max_length" mapstructure:"max_length"`
	Truncation           bool    `yaml:"truncation" mapstructure:"truncation"`
	LearningRate         float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	Epochs               int     `yaml:"epochs" mapstructure:"epochs"`
	HiddenSize           int     `yaml:"hidden_size" mapstructure:"hidden_size"`
	Layers               string  `yaml:"layers" mapstructure:"layers"`
	SubtokenPooling      string  `yaml:"subtoken_pooling" mapstructure:"subtoken_pooling"`
	UseContext           bool    `yaml:"use_context" mapstructure:"use_context"`
	UseRNN               bool    `yaml:"use_rnn" mapstructure:"use_rnn"`
	ReprojectEmbeddings  bool    `yaml:"reproject_embeddings" mapstructure:"reproject_embeddings"`
	UseFinalModelForEval bool    `yaml:"use_final_model_for_eval" mapstructure:"use_final_model_for_eval"`
}

// CVConfig configures the cross-validation loop.
type CVConfig struct {
	Technique          string `yaml:"technique" mapstructure:"technique"`
	Folds              int    `yaml:"folds" mapstructure:"folds"`
	ArchitectureNaming string `yaml:"architecture_naming" mapstructure:"architecture_naming"`
}

// PathsConfig holds the input and output roots.
type PathsConfig struct {
	Corpora string `yaml:"corpora" mapstructure:"corpora"`
	Models  string `yaml:"models" mapstructure:"models"`
	Metrics string `yaml:"metrics" mapstructure:"metrics"`
	Time    string `yaml:"time" mapstructure:"time"`
}

// Roots returns the output roots as a layout.Roots.
func (p PathsConfig) Roots() layout.Roots {
	return layout.Roots{Models: p.Models, Metrics: p.Metrics, Time: p.Time}
}

// CorpusConfig configures how column files are read.
type CorpusConfig struct {
	TextColumn int    `yaml:"text_column" mapstructure:"text_column"`
	TagColumn  int    `yaml:"tag_column" mapstructure:"tag_column"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding"`
}

// TrainerConfig configures the external fine-tuning process.
type TrainerConfig struct {
	Command string   `yaml:"command" mapstructure:"command"`
	Args    []string `yaml:"args" mapstructure:"args"`
	WorkDir string   `yaml:"work_dir" mapstructure:"work_dir"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SummaryConfig configures cross-fold report loading.
type SummaryConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var (
	// ErrUnknownModel is returned for a model key with no checkpoint.
	ErrUnknownModel = eris.New("unknown model")
	// ErrUnknownMetric is returned for a metric key with no selector.
	ErrUnknownMetric = eris.New("unknown metric")
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NERCV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("models", map[string]any{
		"BERTimbau":   "neuralmind/bert-large-portuguese-cased",
		"XLM-R-large": "FacebookAI/xlm-roberta-large",
	})
	v.SetDefault("metrics", map[string]any{
		"micro_avg": map[string]any{"section": "micro avg", "metric": "f1-score"},
		"macro_avg": map[string]any{"section": "macro avg", "metric": "f1-score"},
	})
	v.SetDefault("training.max_length", 512)
	v.SetDefault("training.truncation", true)
	v.SetDefault("training.learning_rate", 2e-05)
	v.SetDefault("training.epochs", 10)
	v.SetDefault("training.hidden_size", 256)
	v.SetDefault("training.layers", "-1")
	v.SetDefault("training.subtoken_pooling", "first")
	v.SetDefault("training.use_context", false)
	v.SetDefault("training.use_rnn", false)
	v.SetDefault("training.reproject_embeddings", false)
	v.SetDefault("training.use_final_model_for_eval", false)
	v.SetDefault("cv.technique", "supervised")
	v.SetDefault("cv.folds", 5)
	v.SetDefault("cv.architecture_naming", NamingPerVariant)
	v.SetDefault("paths.corpora", "corpora")
	v.SetDefault("paths.models", string(layout.CategoryModels))
	v.SetDefault("paths.metrics", string(layout.CategoryMetrics))
	v.SetDefault("paths.time", string(layout.CategoryTime))
	v.SetDefault("corpus.text_column", 0)
	v.SetDefault("corpus.tag_column", 1)
	v.SetDefault("corpus.encoding", "utf-8")
	v.SetDefault("trainer.command", "nercv-trainer")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "nercv.db")
	v.SetDefault("summary.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "run",
// "evaluate", "summary", "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		if c.Trainer.Command == "" {
			errs = append(errs, "trainer.command is required")
		}
		if c.Paths.Corpora == "" {
			errs = append(errs, "paths.corpora is required")
		}
		if len(c.Models) == 0 {
			errs = append(errs, "models must not be empty")
		}
		if len(c.Metrics) == 0 {
			errs = append(errs, "metrics must not be empty")
		}
		errs = append(errs, c.validateCV()...)
		if c.Training.Epochs <= 0 {
			errs = append(errs, "training.epochs must be > 0")
		}
		if c.Training.LearningRate <= 0 {
			errs = append(errs, "training.learning_rate must be > 0")
		}
	case "evaluate":
		errs = append(errs, c.validateCV()...)
	case "summary":
		errs = append(errs, c.validateCV()...)
		if c.Summary.Concurrency < 1 || c.Summary.Concurrency > 64 {
			errs = append(errs, "summary.concurrency must be between 1 and 64")
		}
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "none":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateCV() []string {
	var errs []string
	if c.CV.Folds <= 0 {
		errs = append(errs, "cv.folds must be > 0")
	}
	if c.CV.Technique == "" {
		errs = append(errs, "cv.technique is required")
	}
	switch c.CV.ArchitectureNaming {
	case NamingPerVariant, NamingCumulative:
	default:
		errs = append(errs, fmt.Sprintf("cv.architecture_naming %q must be %s or %s", c.CV.ArchitectureNaming, NamingPerVariant, NamingCumulative))
	}
	return errs
}

// ResolveModel returns the checkpoint identifier for a model key. Keys are
// matched case-insensitively because viper lowercases map keys.
func (c *Config) ResolveModel(key string) (string, error) {
	for k, checkpoint := range c.Models {
		if strings.EqualFold(k, key) {
			return checkpoint, nil
		}
	}
	return "", eris.Wrapf(ErrUnknownModel, "config: %q (known: %s)", key, strings.Join(sortedKeys(c.Models), ", "))
}

// ResolveMetric returns the evaluation metric selector for a metric key.
func (c *Config) ResolveMetric(key string) (model.MetricSelector, error) {
	for k, sel := range c.Metrics {
		if strings.EqualFold(k, key) {
			return sel, nil
		}
	}
	return model.MetricSelector{}, eris.Wrapf(ErrUnknownMetric, "config: %q (known: %s)", key, strings.Join(sortedKeys(c.Metrics), ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
