package summary

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/nercv/internal/config"
	"github.com/sells-group/nercv/internal/crossval"
	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/metrics"
	"github.com/sells-group/nercv/internal/model"
)

var microF1 = model.MetricSelector{Section: "micro avg", Metric: "f1-score"}

type foldFixture struct {
	yTrue, yPred [][]string
	seconds      float64 // 0 writes no time.txt
}

// Fold 0 is perfect. Fold 1 misses PER and finds LOC, which fold 0 lacks.
var twoFolds = []foldFixture{
	{yTrue: [][]string{{"B-PER", "O"}}, yPred: [][]string{{"B-PER", "O"}}, seconds: 2},
	{yTrue: [][]string{{"B-PER"}, {"B-LOC"}}, yPred: [][]string{{"O"}, {"B-LOC"}}, seconds: 4},
}

func testRequest(t *testing.T) Request {
	t.Helper()
	root := t.TempDir()
	return Request{
		ModelKey:    "BERTimbau",
		Corpus:      "harem",
		MetricKey:   "micro_avg",
		Metric:      microF1,
		Technique:   "supervised",
		Folds:       2,
		Naming:      config.NamingPerVariant,
		Concurrency: 2,
		Roots: layout.Roots{
			Models:  filepath.Join(root, "models"),
			Metrics: filepath.Join(root, "metrics"),
			Time:    filepath.Join(root, "time"),
		},
	}
}

func writeFolds(t *testing.T, req Request, architecture string, folds []foldFixture) {
	t.Helper()
	for i, f := range folds {
		path := layout.RunPath{
			Technique: req.Technique, Corpus: req.Corpus, Architecture: architecture,
			Metric: req.MetricKey, Folds: req.Folds, Fold: i,
		}
		_, tree, err := metrics.Aggregate(f.yTrue, f.yPred)
		require.NoError(t, err)
		dir, err := path.Ensure(req.Roots, layout.CategoryMetrics)
		require.NoError(t, err)
		require.NoError(t, metrics.WriteJSON(filepath.Join(dir, metrics.ReportFile), tree))

		if f.seconds > 0 {
			require.NoError(t, crossval.WriteTime(path.Dir(req.Roots, layout.CategoryTime), f.seconds))
		}
	}
}

func untimed(folds []foldFixture) []foldFixture {
	out := make([]foldFixture, len(folds))
	for i, f := range folds {
		f.seconds = 0
		out[i] = f
	}
	return out
}

func builtSummary(t *testing.T) *Summary {
	t.Helper()
	req := testRequest(t)
	writeFolds(t, req, "BERTimbau_crf", twoFolds)
	writeFolds(t, req, "BERTimbau_linear", untimed(twoFolds))

	s, err := Build(context.Background(), req)
	require.NoError(t, err)
	return s
}

func rowOf(t *testing.T, v Variant, section string) Row {
	t.Helper()
	for _, r := range v.Rows {
		if r.Section == section {
			return r
		}
	}
	t.Fatalf("no row %q", section)
	return Row{}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	s := builtSummary(t)
	require.Len(t, s.Variants, 2)

	crf := s.Variants[0]
	assert.Equal(t, "BERTimbau_crf", crf.Architecture)
	assert.True(t, crf.UseCRF)
	assert.Equal(t, 2, crf.Folds)

	// micro f1 is 1 and 2/3.
	assert.InDelta(t, 5.0/6.0, crf.Selected.Mean, 1e-9)
	assert.InDelta(t, 0.2357, crf.Selected.StdDev, 1e-4)

	require.NotNil(t, crf.Seconds)
	assert.InDelta(t, 3.0, crf.Seconds.Mean, 1e-9)
	assert.InDelta(t, 1.4142, crf.Seconds.StdDev, 1e-4)

	var sections []string
	for _, r := range crf.Rows {
		sections = append(sections, r.Section)
	}
	assert.Equal(t, []string{"PER", "LOC", "micro avg", "macro avg", "weighted avg"}, sections)

	loc := rowOf(t, crf, "LOC")
	assert.InDelta(t, 0.5, loc.F1.Mean, 1e-9)
	assert.InDelta(t, 0.5, loc.Support, 1e-9)

	linear := s.Variants[1]
	assert.Equal(t, "BERTimbau_linear", linear.Architecture)
	assert.False(t, linear.UseCRF)
	assert.Nil(t, linear.Seconds)
}

func TestBuild_SingleFoldHasZeroStdDev(t *testing.T) {
	t.Parallel()

	req := testRequest(t)
	req.Folds = 1
	writeFolds(t, req, "BERTimbau_crf", twoFolds[1:])
	writeFolds(t, req, "BERTimbau_linear", twoFolds[1:])

	s, err := Build(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, s.Variants[0].Selected.Mean, 1e-9)
	assert.Zero(t, s.Variants[0].Selected.StdDev)
}

func TestBuild_MissingReport(t *testing.T) {
	t.Parallel()

	req := testRequest(t)
	writeFolds(t, req, "BERTimbau_crf", twoFolds)

	_, err := Build(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary: load fold")
}

func TestBuild_UnknownSelector(t *testing.T) {
	t.Parallel()

	req := testRequest(t)
	req.Metric = model.MetricSelector{Section: "micro avg", Metric: "accuracy"}
	writeFolds(t, req, "BERTimbau_crf", twoFolds)
	writeFolds(t, req, "BERTimbau_linear", twoFolds)

	_, err := Build(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no micro avg accuracy")
}

func TestBuild_InvalidFolds(t *testing.T) {
	t.Parallel()

	req := testRequest(t)
	req.Folds = 0
	_, err := Build(context.Background(), req)
	require.Error(t, err)
}

func TestReadTime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, crossval.WriteTime(dir, 1234.5))
	secs, err := ReadTime(filepath.Join(dir, crossval.TimeFile))
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, secs, 1e-9)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("soon\n"), 0o644))
	_, err = ReadTime(bad)
	assert.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, builtSummary(t).WriteTable(&buf))

	out := buf.String()
	assert.Contains(t, out, "BERTimbau_crf")
	assert.Contains(t, out, "micro avg f1-score over 2 folds:")
	assert.Contains(t, out, "0.8333 ± 0.2357")
	assert.Contains(t, out, "training time (s):")
	assert.Contains(t, out, "SECTION")
	assert.Contains(t, out, "weighted avg")
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := builtSummary(t)
	require.NoError(t, s.WriteYAML(&buf))

	var back Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, s.Model, back.Model)
	assert.Equal(t, s.Metric, back.Metric)
	require.Len(t, back.Variants, 2)
	assert.InDelta(t, s.Variants[0].Selected.Mean, back.Variants[0].Selected.Mean, 1e-12)
	assert.Contains(t, buf.String(), "f1-score:")
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, builtSummary(t).WriteXLSX(path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sheet, ok := f.Sheet["BERTimbau_crf"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 6)
	assert.Equal(t, "section", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "PER", sheet.Rows[1].Cells[0].Value)
}

func TestSheetName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", sheetName("short"))
	assert.Len(t, []rune(sheetName("a-very-long-architecture-name-with-suffix_crf_linear")), 31)
}
