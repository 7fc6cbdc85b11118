// Package trainer drives the external process that fine-tunes a
// transformer-backed sequence tagger and tags new text with it.
package trainer

import (
	"context"
)

// JobFile is the job description written into the output directory.
const JobFile = "job.json"

// LabelType is the annotation layer the tagger is trained on.
const LabelType = "ner"

// HeadOptions configures the tagging head on top of the transformer.
type HeadOptions struct {
	HiddenSize           int    `json:"hidden_size"`
	Layers               string `json:"layers"`
	SubtokenPooling      string `json:"subtoken_pooling"`
	FineTune             bool   `json:"fine_tune"`
	UseContext           bool   `json:"use_context"`
	UseRNN               bool   `json:"use_rnn"`
	ReprojectEmbeddings  bool   `json:"reproject_embeddings"`
	UseFinalModelForEval bool   `json:"use_final_model_for_eval"`
}

// DefaultHead returns the head used for every fold: a 256-unit tagger over
// the last transformer layer with first-subtoken pooling.
func DefaultHead() HeadOptions {
	return HeadOptions{
		HiddenSize:      256,
		Layers:          "-1",
		SubtokenPooling: "first",
		FineTune:        true,
	}
}

// Job describes one fine-tuning run.
type Job struct {
	// DataFolder holds train.txt, dev.txt and test.txt.
	DataFolder string `json:"data_folder"`
	CorpusName string `json:"corpus_name"`
	// Checkpoint is the pretrained model identifier, e.g.
	// neuralmind/bert-large-portuguese-cased.
	Checkpoint string `json:"model_checkpoint"`
	ModelName  string `json:"model_name"`
	// OutputDir receives the trained model and test.tsv.
	OutputDir    string  `json:"output_dir"`
	MaxLength    int     `json:"max_length"`
	Truncation   bool    `json:"truncation"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	UseCRF       bool    `json:"use_crf"`
	// MainEvaluationMetric selects the checkpoint, e.g. ["micro avg", "f1-score"].
	MainEvaluationMetric [2]string   `json:"main_evaluation_metric"`
	LabelType            string      `json:"label_type"`
	Labels               []string    `json:"labels,omitempty"`
	Head                 HeadOptions `json:"head"`
}

// FineTuner trains a tagger for a job. On success the output directory
// contains test.tsv with one "<token> <true> <pred>" line per test token.
type FineTuner interface {
	FineTune(ctx context.Context, job Job) error
}
