package metrics

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/seqeval"
)

// ReportDigits is the precision used when a report is rendered as text.
const ReportDigits = 4

// Result is the outcome of evaluating one fold.
type Result struct {
	Report *seqeval.Report
	Tree   Value
	// Sentences is the number of sentences read from the reconstructed file.
	Sentences int
	// Path is where the report tree was written.
	Path string
}

// Tree converts a classification report into a nested mapping: one entry per
// entity type, then micro, macro and weighted averages, each holding
// precision, recall, f1-score and support.
func Tree(r *seqeval.Report) Value {
	row := func(s seqeval.Scores) Value {
		return Map(
			Field{Key: seqeval.Precision, Value: Float(s.Precision)},
			Field{Key: seqeval.Recall, Value: Float(s.Recall)},
			Field{Key: seqeval.F1Score, Value: Float(s.F1)},
			Field{Key: seqeval.Support, Value: Int(int64(s.Support))},
		)
	}

	fields := make([]Field, 0, len(r.Labels)+3)
	for _, l := range r.Labels {
		fields = append(fields, Field{Key: l, Value: row(r.PerLabel[l])})
	}
	fields = append(fields,
		Field{Key: seqeval.MicroAvg, Value: row(r.Micro)},
		Field{Key: seqeval.MacroAvg, Value: row(r.Macro)},
		Field{Key: seqeval.WeightedAvg, Value: row(r.Weighted)},
	)
	return Map(fields...)
}

// Aggregate builds the classification report for the given sentences and
// returns it together with its normalized tree.
func Aggregate(yTrue, yPred [][]string) (*seqeval.Report, Value, error) {
	r, err := seqeval.ClassificationReport(yTrue, yPred)
	if err != nil {
		return nil, Value{}, eris.Wrap(err, "metrics: classification report")
	}
	return r, Normalize(Tree(r)), nil
}

// Evaluate reconstructs modelDir/test.tsv into modelDir/test.txt, scores it
// and writes the report to metricsDir/test.json. metricsDir is created when
// missing.
func Evaluate(modelDir, metricsDir string) (*Result, error) {
	tsvPath := filepath.Join(modelDir, PredictionsFile)
	txtPath := filepath.Join(modelDir, ReconstructedFile)

	if err := ReconstructFile(tsvPath, txtPath); err != nil {
		return nil, err
	}
	zap.L().Debug("reconstructed predictions", zap.String("path", txtPath))

	yTrue, yPred, err := ReadSentencesFile(txtPath)
	if err != nil {
		return nil, err
	}

	report, tree, err := Aggregate(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	dir, err := layout.EnsureDir(metricsDir)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, ReportFile)
	if err := WriteJSON(out, tree); err != nil {
		return nil, err
	}

	return &Result{Report: report, Tree: tree, Sentences: len(yTrue), Path: out}, nil
}

// WriteJSON writes v to path as UTF-8 JSON.
func WriteJSON(path string, v Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "metrics: write %s", path)
}

// ReadJSON loads a report tree written by WriteJSON.
func ReadJSON(path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Value{}, eris.Wrapf(err, "metrics: read %s", path)
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, eris.Wrapf(err, "metrics: parse %s", path)
	}
	return v, nil
}

// Score reads one metric from a report tree, e.g. ("micro avg", "f1-score").
func Score(v Value, section, metric string) (float64, bool) {
	leaf, ok := v.Lookup(section, metric)
	if !ok {
		return 0, false
	}
	return leaf.Float64()
}
