package seqeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seq  []string
		want []Entity
	}{
		{
			name: "bio",
			seq:  []string{"B-PER", "I-PER", "O", "B-LOC"},
			want: []Entity{{"PER", 0, 1}, {"LOC", 3, 3}},
		},
		{
			name: "inside without begin starts a chunk",
			seq:  []string{"O", "I-ORG", "I-ORG"},
			want: []Entity{{"ORG", 1, 2}},
		},
		{
			name: "type change splits chunk",
			seq:  []string{"B-PER", "I-LOC"},
			want: []Entity{{"PER", 0, 0}, {"LOC", 1, 1}},
		},
		{
			name: "consecutive begins",
			seq:  []string{"B-PER", "B-PER"},
			want: []Entity{{"PER", 0, 0}, {"PER", 1, 1}},
		},
		{
			name: "iobes",
			seq:  []string{"S-LOC", "B-PER", "E-PER", "O"},
			want: []Entity{{"LOC", 0, 0}, {"PER", 1, 2}},
		},
		{
			name: "all outside",
			seq:  []string{"O", "O"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SequenceEntities(tt.seq))
		})
	}
}

func TestEntities_SentenceBoundaryClosesChunk(t *testing.T) {
	t.Parallel()

	// I-PER at the start of the second sentence must not continue the first chunk.
	got := Entities([][]string{{"B-PER"}, {"I-PER"}})
	assert.Equal(t, []Entity{{"PER", 0, 0}, {"PER", 2, 2}}, got)
}

func TestSplitTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, tag, typ string
	}{
		{"B-PER", "B", "PER"},
		{"I-PER-X", "I", "PER-X"},
		{"O", "O", "_"},
		{"", "O", "_"},
		{"PER", "P", "ER"},
	}
	for _, tt := range tests {
		tag, typ := splitTag(tt.in)
		assert.Equal(t, tt.tag, tag, tt.in)
		assert.Equal(t, tt.typ, typ, tt.in)
	}
}

func TestClassificationReport_Readme(t *testing.T) {
	t.Parallel()

	yTrue := [][]string{{"O", "O", "O", "B-MISC", "I-MISC", "I-MISC", "O"}, {"B-PER", "I-PER", "O"}}
	yPred := [][]string{{"O", "O", "B-MISC", "I-MISC", "I-MISC", "I-MISC", "O"}, {"B-PER", "I-PER", "O"}}

	r, err := ClassificationReport(yTrue, yPred)
	require.NoError(t, err)

	assert.Equal(t, []string{"MISC", "PER"}, r.Labels)
	assert.Equal(t, Scores{Precision: 0, Recall: 0, F1: 0, Support: 1}, r.PerLabel["MISC"])
	assert.Equal(t, Scores{Precision: 1, Recall: 1, F1: 1, Support: 1}, r.PerLabel["PER"])

	assert.InDelta(t, 0.5, r.Micro.Precision, 1e-9)
	assert.InDelta(t, 0.5, r.Micro.Recall, 1e-9)
	assert.InDelta(t, 0.5, r.Micro.F1, 1e-9)
	assert.Equal(t, 2, r.Micro.Support)

	assert.InDelta(t, 0.5, r.Macro.F1, 1e-9)
	assert.InDelta(t, 0.5, r.Weighted.F1, 1e-9)
	assert.Equal(t, 2, r.Weighted.Support)
}

func TestClassificationReport_PartialMatch(t *testing.T) {
	t.Parallel()

	yTrue := [][]string{{"B-PER", "I-PER", "O", "B-LOC", "O", "B-LOC"}}
	yPred := [][]string{{"B-PER", "I-PER", "O", "B-LOC", "O", "O"}}

	r, err := ClassificationReport(yTrue, yPred)
	require.NoError(t, err)

	loc := r.PerLabel["LOC"]
	assert.InDelta(t, 1.0, loc.Precision, 1e-9)
	assert.InDelta(t, 0.5, loc.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, loc.F1, 1e-9)
	assert.Equal(t, 2, loc.Support)

	// micro: tp=2, pred=2, true=3
	assert.InDelta(t, 1.0, r.Micro.Precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, r.Micro.Recall, 1e-9)
	assert.InDelta(t, 0.8, r.Micro.F1, 1e-9)

	// macro: mean of PER (1,1,1) and LOC (1,0.5,0.667)
	assert.InDelta(t, 0.75, r.Macro.Recall, 1e-9)
	assert.InDelta(t, (1+2.0/3.0)/2, r.Macro.F1, 1e-9)

	// weighted by support: PER 1, LOC 2
	assert.InDelta(t, (1*1+0.5*2)/3.0, r.Weighted.Recall, 1e-9)
}

func TestClassificationReport_SpuriousPrediction(t *testing.T) {
	t.Parallel()

	r, err := ClassificationReport([][]string{{"O", "O"}}, [][]string{{"B-ORG", "O"}})
	require.NoError(t, err)

	org := r.PerLabel["ORG"]
	assert.Equal(t, 0, org.Support)
	assert.Zero(t, org.Precision)
	assert.Zero(t, org.Recall)
	assert.Zero(t, r.Weighted.F1)
}

func TestClassificationReport_NoEntities(t *testing.T) {
	t.Parallel()

	r, err := ClassificationReport([][]string{{"O"}}, [][]string{{"O"}})
	require.NoError(t, err)
	assert.Empty(t, r.Labels)
	assert.Equal(t, Scores{}, r.Micro)
	assert.Equal(t, Scores{}, r.Macro)
}

func TestClassificationReport_InconsistentLength(t *testing.T) {
	t.Parallel()

	_, err := ClassificationReport([][]string{{"O"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent number of sentences")

	_, err = ClassificationReport([][]string{{"O", "O"}}, [][]string{{"O"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentence 0 has 2 true and 1 predicted tags")
}

func TestReport_Row(t *testing.T) {
	t.Parallel()

	r, err := ClassificationReport([][]string{{"B-PER"}}, [][]string{{"B-PER"}})
	require.NoError(t, err)

	for _, name := range []string{"PER", MicroAvg, MacroAvg, WeightedAvg} {
		s, ok := r.Row(name)
		require.True(t, ok, name)
		assert.InDelta(t, 1.0, s.F1, 1e-9, name)
	}

	_, ok := r.Row("LOC")
	assert.False(t, ok)
}

func TestReport_Text(t *testing.T) {
	t.Parallel()

	yTrue := [][]string{{"O", "O", "O", "B-MISC", "I-MISC", "I-MISC", "O"}, {"B-PER", "I-PER", "O"}}
	yPred := [][]string{{"O", "O", "B-MISC", "I-MISC", "I-MISC", "I-MISC", "O"}, {"B-PER", "I-PER", "O"}}

	r, err := ClassificationReport(yTrue, yPred)
	require.NoError(t, err)

	text := r.Text(4)
	assert.Contains(t, text, "precision    recall  f1-score   support")
	assert.Contains(t, text, "        MISC     0.0000    0.0000    0.0000         1")
	assert.Contains(t, text, "   micro avg     0.5000    0.5000    0.5000         2")
	assert.Contains(t, text, "weighted avg     0.5000    0.5000    0.5000         2")
}
