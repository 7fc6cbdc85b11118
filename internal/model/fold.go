package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the current state of a fold run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Head names the output layer of the sequence tagger.
type Head string

const (
	HeadCRF    Head = "crf"
	HeadLinear Head = "linear"
)

// HeadFor returns the head used when the CRF layer is on or off.
func HeadFor(useCRF bool) Head {
	if useCRF {
		return HeadCRF
	}
	return HeadLinear
}

// MetricSelector picks the value that drives model selection during
// training, e.g. ("micro avg", "f1-score").
type MetricSelector struct {
	Section string `json:"section" yaml:"section" mapstructure:"section"`
	Metric  string `json:"metric" yaml:"metric" mapstructure:"metric"`
}

// Pair returns the selector as a two-element list.
func (m MetricSelector) Pair() [2]string {
	return [2]string{m.Section, m.Metric}
}

// FoldSpec describes one fold of a cross-validation run.
type FoldSpec struct {
	ModelKey     string `json:"model_key"`
	Checkpoint   string `json:"checkpoint"`
	Corpus       string `json:"corpus"`
	Technique    string `json:"technique"`
	Architecture string `json:"architecture"`
	MetricKey    string `json:"metric_key"`
	UseCRF       bool   `json:"use_crf"`
	Folds        int    `json:"folds"`
	Fold         int    `json:"fold"`
}

// FoldResult holds the outcome of a completed fold.
type FoldResult struct {
	DurationSecs float64      `json:"duration_secs"`
	MicroF1      float64      `json:"micro_f1"`
	MacroF1      float64      `json:"macro_f1"`
	Sentences    int          `json:"sentences"`
	Labels       []LabelScore `json:"labels,omitempty"`
	// Report is the full metrics report as written to test.json.
	Report json.RawMessage `json:"report,omitempty"`
}

// LabelScore is one per-entity-type row of a fold report.
type LabelScore struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// FoldRun is the persisted record of a fold.
type FoldRun struct {
	ID        string      `json:"id"`
	Spec      FoldSpec    `json:"spec"`
	Status    RunStatus   `json:"status"`
	Result    *FoldResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
