package seqeval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Names of the aggregate rows, in report order.
const (
	MicroAvg    = "micro avg"
	MacroAvg    = "macro avg"
	WeightedAvg = "weighted avg"
)

// Names of the per-row metrics, in report order.
const (
	Precision = "precision"
	Recall    = "recall"
	F1Score   = "f1-score"
	Support   = "support"
)

// Scores holds the metrics of one report row.
type Scores struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is an entity-level classification report.
type Report struct {
	// Labels lists entity types in sorted order.
	Labels   []string
	PerLabel map[string]Scores
	Micro    Scores
	Macro    Scores
	Weighted Scores
}

type span struct{ start, end int }

// ClassificationReport compares true and predicted tag sequences sentence by
// sentence. Both inputs must have the same shape.
func ClassificationReport(yTrue, yPred [][]string) (*Report, error) {
	if err := checkConsistentLength(yTrue, yPred); err != nil {
		return nil, err
	}

	trueSets := groupByType(Entities(yTrue))
	predSets := groupByType(Entities(yPred))

	labelSet := make(map[string]struct{}, len(trueSets)+len(predSets))
	for k := range trueSets {
		labelSet[k] = struct{}{}
	}
	for k := range predSets {
		labelSet[k] = struct{}{}
	}
	labels := make([]string, 0, len(labelSet))
	for k := range labelSet {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	r := &Report{Labels: labels, PerLabel: make(map[string]Scores, len(labels))}

	var tpTotal, predTotal, trueTotal int
	for _, label := range labels {
		ts, ps := trueSets[label], predSets[label]
		tp := 0
		for s := range ts {
			if _, ok := ps[s]; ok {
				tp++
			}
		}
		p := divide(tp, len(ps))
		rc := divide(tp, len(ts))
		r.PerLabel[label] = Scores{Precision: p, Recall: rc, F1: fScore(p, rc), Support: len(ts)}

		tpTotal += tp
		predTotal += len(ps)
		trueTotal += len(ts)
	}

	microP := divide(tpTotal, predTotal)
	microR := divide(tpTotal, trueTotal)
	r.Micro = Scores{Precision: microP, Recall: microR, F1: fScore(microP, microR), Support: trueTotal}

	r.Macro = Scores{Support: trueTotal}
	r.Weighted = Scores{Support: trueTotal}
	if len(labels) > 0 {
		for _, label := range labels {
			s := r.PerLabel[label]
			r.Macro.Precision += s.Precision
			r.Macro.Recall += s.Recall
			r.Macro.F1 += s.F1
			if trueTotal > 0 {
				w := float64(s.Support)
				r.Weighted.Precision += s.Precision * w
				r.Weighted.Recall += s.Recall * w
				r.Weighted.F1 += s.F1 * w
			}
		}
		n := float64(len(labels))
		r.Macro.Precision /= n
		r.Macro.Recall /= n
		r.Macro.F1 /= n
		if trueTotal > 0 {
			w := float64(trueTotal)
			r.Weighted.Precision /= w
			r.Weighted.Recall /= w
			r.Weighted.F1 /= w
		}
	}

	return r, nil
}

// Row returns the scores of a label or aggregate row by name.
func (r *Report) Row(name string) (Scores, bool) {
	switch name {
	case MicroAvg:
		return r.Micro, true
	case MacroAvg:
		return r.Macro, true
	case WeightedAvg:
		return r.Weighted, true
	}
	s, ok := r.PerLabel[name]
	return s, ok
}

// Text renders the report as a fixed-width table with the given number of
// decimal digits.
func (r *Report) Text(digits int) string {
	width := len(WeightedAvg)
	for _, l := range r.Labels {
		if len(l) > width {
			width = len(l)
		}
	}
	if digits > width {
		width = digits
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%*s  %9s %9s %9s %9s\n\n", width, "", Precision, Recall, F1Score, Support)

	row := func(name string, s Scores) {
		fmt.Fprintf(&sb, "%*s  %9.*f %9.*f %9.*f %9d\n", width, name, digits, s.Precision, digits, s.Recall, digits, s.F1, s.Support)
	}
	for _, l := range r.Labels {
		row(l, r.PerLabel[l])
	}
	sb.WriteString("\n")
	row(MicroAvg, r.Micro)
	row(MacroAvg, r.Macro)
	row(WeightedAvg, r.Weighted)
	return sb.String()
}

func checkConsistentLength(yTrue, yPred [][]string) error {
	if len(yTrue) != len(yPred) {
		return eris.Errorf("seqeval: inconsistent number of sentences: %d true, %d predicted", len(yTrue), len(yPred))
	}
	for i := range yTrue {
		if len(yTrue[i]) != len(yPred[i]) {
			return eris.Errorf("seqeval: sentence %d has %d true and %d predicted tags", i, len(yTrue[i]), len(yPred[i]))
		}
	}
	return nil
}

func groupByType(entities []Entity) map[string]map[span]struct{} {
	out := make(map[string]map[span]struct{})
	for _, e := range entities {
		set, ok := out[e.Type]
		if !ok {
			set = make(map[span]struct{})
			out[e.Type] = set
		}
		set[span{e.Start, e.End}] = struct{}{}
	}
	return out
}

// divide returns 0 when the denominator is 0.
func divide(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func fScore(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
