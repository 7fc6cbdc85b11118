// Package crossval runs k-fold cross-validated fine-tuning of a sequence
// tagger under the CRF and linear head variants.
package crossval

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nercv/internal/config"
	"github.com/sells-group/nercv/internal/corpus"
	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/metrics"
	"github.com/sells-group/nercv/internal/model"
	"github.com/sells-group/nercv/internal/store"
	"github.com/sells-group/nercv/internal/trainer"
)

// TimeFile is the per-fold wall-clock record under the time root.
const TimeFile = "time.txt"

// Variant is one tagging-head configuration of a run.
type Variant struct {
	UseCRF       bool
	Architecture string
}

// Variants returns the head variants in run order: CRF first, then linear.
// With config.NamingCumulative the head names accumulate across variants.
func Variants(modelKey, naming string) []Variant {
	parts := []string{modelKey}
	var out []Variant
	for _, useCRF := range []bool{true, false} {
		head := string(model.HeadFor(useCRF))
		var arch string
		if naming == config.NamingCumulative {
			parts = append(parts, head)
			arch = strings.Join(parts, "_")
		} else {
			arch = modelKey + "_" + head
		}
		out = append(out, Variant{UseCRF: useCRF, Architecture: arch})
	}
	return out
}

// VariantFor returns the variant with the given CRF flag.
func VariantFor(modelKey, naming string, useCRF bool) Variant {
	for _, v := range Variants(modelKey, naming) {
		if v.UseCRF == useCRF {
			return v
		}
	}
	return Variant{}
}

// Params selects what a run trains.
type Params struct {
	ModelKey  string
	Corpus    string
	MetricKey string
}

// Driver runs every fold of every variant sequentially.
type Driver struct {
	cfg   *config.Config
	tuner trainer.FineTuner
	store store.Store
	now   func() time.Time
}

// NewDriver creates a Driver. st may be nil to skip run history.
func NewDriver(cfg *config.Config, tuner trainer.FineTuner, st store.Store) *Driver {
	return &Driver{cfg: cfg, tuner: tuner, store: st, now: time.Now}
}

// Run resolves the model and metric keys, then trains and evaluates
// folds 0..k-1 for the CRF variant followed by the linear variant. The first
// error aborts the run.
func (d *Driver) Run(ctx context.Context, p Params) ([]model.FoldRun, error) {
	checkpoint, err := d.cfg.ResolveModel(p.ModelKey)
	if err != nil {
		return nil, err
	}
	selector, err := d.cfg.ResolveMetric(p.MetricKey)
	if err != nil {
		return nil, err
	}

	var runs []model.FoldRun
	for _, v := range Variants(p.ModelKey, d.cfg.CV.ArchitectureNaming) {
		for fold := 0; fold < d.cfg.CV.Folds; fold++ {
			spec := model.FoldSpec{
				ModelKey:     p.ModelKey,
				Checkpoint:   checkpoint,
				Corpus:       p.Corpus,
				Technique:    d.cfg.CV.Technique,
				Architecture: v.Architecture,
				MetricKey:    p.MetricKey,
				UseCRF:       v.UseCRF,
				Folds:        d.cfg.CV.Folds,
				Fold:         fold,
			}
			run, err := d.runFold(ctx, spec, selector)
			if err != nil {
				return runs, err
			}
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

// RunPath returns the output location of a fold.
func RunPath(spec model.FoldSpec) layout.RunPath {
	return layout.RunPath{
		Technique:    spec.Technique,
		Corpus:       spec.Corpus,
		Architecture: spec.Architecture,
		Metric:       spec.MetricKey,
		Folds:        spec.Folds,
		Fold:         spec.Fold,
	}
}

func (d *Driver) runFold(ctx context.Context, spec model.FoldSpec, selector model.MetricSelector) (*model.FoldRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "crossval: run cancelled")
	}

	log := zap.L().With(
		zap.String("architecture", spec.Architecture),
		zap.Int("fold", spec.Fold),
	)

	run := &model.FoldRun{Spec: spec, Status: model.RunStatusRunning, CreatedAt: d.now().UTC()}
	if d.store != nil {
		created, err := d.store.CreateRun(ctx, spec)
		if err != nil {
			return nil, eris.Wrap(err, "crossval: record fold")
		}
		run = created
	}

	result, err := d.fold(ctx, spec, selector, log)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		if d.store != nil {
			if serr := d.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); serr != nil {
				log.Error("crossval: mark fold failed", zap.Error(serr))
			}
		}
		return nil, err
	}

	run.Status = model.RunStatusComplete
	run.Result = result
	run.UpdatedAt = d.now().UTC()
	if d.store != nil {
		if err := d.store.CompleteRun(ctx, run.ID, result); err != nil {
			return nil, eris.Wrap(err, "crossval: record fold result")
		}
	}
	return run, nil
}

func (d *Driver) fold(ctx context.Context, spec model.FoldSpec, selector model.MetricSelector, log *zap.Logger) (*model.FoldResult, error) {
	cfg := d.cfg
	roots := cfg.Paths.Roots()
	path := RunPath(spec)
	dataDir := layout.CorpusDir(cfg.Paths.Corpora, spec.Corpus, spec.Folds, spec.Fold)

	c, err := corpus.Load(dataDir, corpus.Options{
		TextColumn: cfg.Corpus.TextColumn,
		TagColumn:  cfg.Corpus.TagColumn,
		Encoding:   cfg.Corpus.Encoding,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "crossval: load corpus for fold %d", spec.Fold)
	}
	labels := c.SpanDictionary()
	stats := c.Stats()
	log.Debug("crossval: corpus loaded",
		zap.String("dir", dataDir),
		zap.Int("train", stats[corpus.SplitTrain].Sentences),
		zap.Int("dev", stats[corpus.SplitDev].Sentences),
		zap.Int("test", stats[corpus.SplitTest].Sentences),
		zap.Strings("labels", labels.Items()),
	)

	log.Info("crossval: starting training",
		zap.String("model", spec.ModelKey),
		zap.String("checkpoint", spec.Checkpoint),
		zap.String("progress", progress(spec)),
	)

	modelDir := path.Dir(roots, layout.CategoryModels)
	job := trainer.Job{
		DataFolder:           dataDir,
		CorpusName:           spec.Corpus,
		Checkpoint:           spec.Checkpoint,
		ModelName:            spec.ModelKey,
		OutputDir:            modelDir,
		MaxLength:            cfg.Training.MaxLength,
		Truncation:           cfg.Training.Truncation,
		LearningRate:         cfg.Training.LearningRate,
		Epochs:               cfg.Training.Epochs,
		UseCRF:               spec.UseCRF,
		MainEvaluationMetric: selector.Pair(),
		LabelType:            trainer.LabelType,
		Labels:               labels.Items(),
		Head: trainer.HeadOptions{
			HiddenSize:           cfg.Training.HiddenSize,
			Layers:               cfg.Training.Layers,
			SubtokenPooling:      cfg.Training.SubtokenPooling,
			FineTune:             true,
			UseContext:           cfg.Training.UseContext,
			UseRNN:               cfg.Training.UseRNN,
			ReprojectEmbeddings:  cfg.Training.ReprojectEmbeddings,
			UseFinalModelForEval: cfg.Training.UseFinalModelForEval,
		},
	}

	start := d.now()
	if err := d.tuner.FineTune(ctx, job); err != nil {
		return nil, eris.Wrapf(err, "crossval: fine-tune fold %d", spec.Fold)
	}

	res, err := metrics.Evaluate(modelDir, path.Dir(roots, layout.CategoryMetrics))
	if err != nil {
		return nil, eris.Wrapf(err, "crossval: evaluate fold %d", spec.Fold)
	}
	elapsed := d.now().Sub(start).Seconds()

	if err := WriteTime(path.Dir(roots, layout.CategoryTime), elapsed); err != nil {
		return nil, err
	}

	result, err := FoldResultOf(res)
	if err != nil {
		return nil, err
	}
	result.DurationSecs = elapsed

	log.Info("crossval: fold complete",
		zap.Float64("seconds", elapsed),
		zap.Float64("micro_f1", result.MicroF1),
		zap.Float64("macro_f1", result.MacroF1),
	)
	return result, nil
}

// progress renders "i/last", where last is the index of the final fold.
func progress(spec model.FoldSpec) string {
	return strconv.Itoa(spec.Fold) + "/" + strconv.Itoa(spec.Folds-1)
}

// WriteTime writes "<seconds> seconds\n" to dir/time.txt, creating dir.
func WriteTime(dir string, seconds float64) error {
	dir, err := layout.EnsureDir(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, TimeFile)
	content := metrics.FormatFloat(seconds) + " seconds\n"
	return eris.Wrapf(os.WriteFile(path, []byte(content), 0o644), "crossval: write %s", path)
}

// FoldResultOf summarizes an evaluated fold for the run history.
func FoldResultOf(res *metrics.Result) (*model.FoldResult, error) {
	report, err := res.Tree.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "crossval: encode report")
	}
	out := &model.FoldResult{
		MicroF1:   res.Report.Micro.F1,
		MacroF1:   res.Report.Macro.F1,
		Sentences: res.Sentences,
		Report:    report,
	}
	for _, l := range res.Report.Labels {
		s := res.Report.PerLabel[l]
		out.Labels = append(out.Labels, model.LabelScore{
			Label:     l,
			Precision: s.Precision,
			Recall:    s.Recall,
			F1:        s.F1,
			Support:   s.Support,
		})
	}
	return out, nil
}
