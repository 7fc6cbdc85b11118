package metrics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstruct(t *testing.T) {
	t.Parallel()

	in := "John B-PER B-PER\nlives\tO\tO\n\nMary B-PER I-PER extra\n"
	var out bytes.Buffer
	require.NoError(t, Reconstruct(strings.NewReader(in), &out))

	assert.Equal(t, "John B-PER B-PER\nlives O O\n\nMary B-PER I-PER\n", out.String())
}

func TestReconstruct_WhitespaceOnlyLineIsSeparator(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, Reconstruct(strings.NewReader("a O O\n   \nb O O\n"), &out))
	assert.Equal(t, "a O O\n\nb O O\n", out.String())
}

func TestReconstruct_ShortLineKept(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, Reconstruct(strings.NewReader("a O O\nbroken B-PER\nb O O\n"), &out))
	assert.Equal(t, "a O O\nbroken B-PER\nb O O\n", out.String())

	yTrue, _, err := ReadSentences(&out)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"O"}, {"O"}}, yTrue)
}

func TestReadSentences_Example(t *testing.T) {
	t.Parallel()

	in := "John B-PER B-PER\nlives O O\n\nMary B-PER I-PER\n"
	yTrue, yPred, err := ReadSentences(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"B-PER", "O"}, {"B-PER"}}, yTrue)
	assert.Equal(t, [][]string{{"B-PER", "O"}, {"I-PER"}}, yPred)
}

func TestReadSentences_Shape(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ n, l int }{{1, 1}, {3, 4}, {10, 7}} {
		var sb strings.Builder
		for s := 0; s < tc.n; s++ {
			for i := 0; i < tc.l; i++ {
				fmt.Fprintf(&sb, "tok%d B-X I-X\n", i)
			}
			sb.WriteString("\n")
		}

		yTrue, yPred, err := ReadSentences(strings.NewReader(sb.String()))
		require.NoError(t, err)
		require.Len(t, yTrue, tc.n)
		require.Len(t, yPred, tc.n)
		for i := range yTrue {
			assert.Len(t, yTrue[i], tc.l)
			assert.Len(t, yPred[i], tc.l)
		}
	}
}

func TestReadSentences_MalformedLinesSplitSentences(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"x", "x O", "x O O extra"} {
		t.Run(bad, func(t *testing.T) {
			t.Parallel()
			in := "a B-PER B-PER\n" + bad + "\nb O O\n"
			yTrue, yPred, err := ReadSentences(strings.NewReader(in))
			require.NoError(t, err)
			assert.Equal(t, [][]string{{"B-PER"}, {"O"}}, yTrue)
			assert.Equal(t, [][]string{{"B-PER"}, {"O"}}, yPred)
		})
	}
}

func TestReadSentences_ConsecutiveSeparators(t *testing.T) {
	t.Parallel()

	yTrue, _, err := ReadSentences(strings.NewReader("\n\na O O\n\n\n\nb O O\n\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"O"}, {"O"}}, yTrue)
}

func TestReadSentences_Empty(t *testing.T) {
	t.Parallel()

	yTrue, yPred, err := ReadSentences(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, yTrue)
	assert.Empty(t, yPred)
}

func TestReadSentencesWithPolicy_Error(t *testing.T) {
	t.Parallel()

	_, _, err := ReadSentencesWithPolicy(strings.NewReader("a O O\n\nb O\n"), MalformedLineError)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3 has 2 fields")
}

func TestReadTokens(t *testing.T) {
	t.Parallel()

	toks, err := ReadTokens(strings.NewReader("John B-PER B-PER\nlives O O\n\nMary B-PER I-PER\n"))
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, Token{Text: "Mary", True: "B-PER", Pred: "I-PER"}, toks[1][0])
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	in := Map(Field{Key: "O", Value: Map(
		Field{Key: "precision", Value: String("1.0")},
		Field{Key: "label", Value: String("PER")},
		Field{Key: "support", Value: Int(3)},
	)})

	got := Normalize(in)

	p, ok := got.Lookup("O", "precision")
	require.True(t, ok)
	assert.Equal(t, KindFloat, p.Kind())
	f, _ := p.Float64()
	assert.Equal(t, 1.0, f)

	label, ok := got.Lookup("O", "label")
	require.True(t, ok)
	s, isStr := label.Str()
	assert.True(t, isStr)
	assert.Equal(t, "PER", s)

	support, _ := got.Lookup("O", "support")
	assert.Equal(t, KindFloat, support.Kind())

	// The input tree is untouched.
	orig, _ := in.Lookup("O", "precision")
	assert.Equal(t, KindString, orig.Kind())
}

func TestNormalize_NaNStaysString(t *testing.T) {
	t.Parallel()

	got := Normalize(String("nan"))
	assert.Equal(t, KindString, got.Kind())
}

func TestValue_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	v := Normalize(Map(
		Field{Key: "PER", Value: Map(Field{Key: "precision", Value: Float(0.8571428571428571)}, Field{Key: "support", Value: Int(7)})},
		Field{Key: "micro avg", Value: Map(Field{Key: "precision", Value: Float(1)})},
	))

	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"PER": {"precision": 0.8571428571428571, "support": 7.0}, "micro avg": {"precision": 1.0}}`, string(data))

	var back Value
	require.NoError(t, back.UnmarshalJSON(data))
	keys := []string{}
	for _, f := range back.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"PER", "micro avg"}, keys)
	f, ok := Score(back, "PER", "support")
	require.True(t, ok)
	assert.Equal(t, 7.0, f)
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		0:                  "0.0",
		1:                  "1.0",
		0.5:                "0.5",
		1234:               "1234.0",
		0.8571428571428571: "0.8571428571428571",
		0.00001:            "1e-05",
		1e16:               "1e+16",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatFloat(in), "%v", in)
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	report, tree, err := Aggregate([][]string{{"B-PER", "O"}, {"B-PER"}}, [][]string{{"B-PER", "O"}, {"I-PER"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"PER"}, report.Labels)

	keys := []string{}
	for _, f := range tree.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"PER", "micro avg", "macro avg", "weighted avg"}, keys)

	f1, ok := Score(tree, "micro avg", "f1-score")
	require.True(t, ok)
	assert.Equal(t, 1.0, f1)

	support, _ := tree.Lookup("PER", "support")
	assert.Equal(t, KindFloat, support.Kind())
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	modelDir := filepath.Join(root, "models", "fold0")
	metricsDir := filepath.Join(root, "metrics", "fold0")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))

	tsv := "John B-PER B-PER\nlives O O\n\nMary B-PER I-PER\nin O O\nLisboa B-LOC O\n"
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, PredictionsFile), []byte(tsv), 0o644))

	res, err := Evaluate(modelDir, metricsDir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sentences)
	assert.Equal(t, filepath.Join(metricsDir, ReportFile), res.Path)

	txt, err := os.ReadFile(filepath.Join(modelDir, ReconstructedFile))
	require.NoError(t, err)
	assert.Equal(t, tsv, string(txt))

	back, err := ReadJSON(res.Path)
	require.NoError(t, err)

	locRecall, ok := Score(back, "LOC", "recall")
	require.True(t, ok)
	assert.Equal(t, 0.0, locRecall)

	microP, ok := Score(back, "micro avg", "precision")
	require.True(t, ok)
	assert.Equal(t, 1.0, microP)
}

func TestEvaluate_MissingPredictions(t *testing.T) {
	t.Parallel()

	_, err := Evaluate(t.TempDir(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: open")
}
