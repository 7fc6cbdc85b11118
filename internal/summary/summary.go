// Package summary aggregates fold reports of a cross-validation run into
// per-variant means and standard deviations.
package summary

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nercv/internal/crossval"
	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/metrics"
	"github.com/sells-group/nercv/internal/model"
	"github.com/sells-group/nercv/internal/seqeval"
)

// Stat is a cross-fold mean with its sample standard deviation. StdDev is 0
// when fewer than two folds contributed.
type Stat struct {
	Mean   float64 `yaml:"mean" json:"mean"`
	StdDev float64 `yaml:"stddev" json:"stddev"`
}

// Row summarizes one report section (an entity type or an average).
type Row struct {
	Section   string  `yaml:"section" json:"section"`
	Precision Stat    `yaml:"precision" json:"precision"`
	Recall    Stat    `yaml:"recall" json:"recall"`
	F1        Stat    `yaml:"f1-score" json:"f1-score"`
	Support   float64 `yaml:"support" json:"support"`
}

// Variant summarizes every fold of one head variant.
type Variant struct {
	Architecture string `yaml:"architecture" json:"architecture"`
	UseCRF       bool   `yaml:"use_crf" json:"use_crf"`
	Folds        int    `yaml:"folds" json:"folds"`
	// Selected is the metric the run optimized, e.g. micro avg f1-score.
	Selected Stat  `yaml:"selected" json:"selected"`
	Seconds  *Stat `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	Rows     []Row `yaml:"rows" json:"rows"`
}

// Summary is the cross-fold view of a run.
type Summary struct {
	Model     string               `yaml:"model" json:"model"`
	Corpus    string               `yaml:"corpus" json:"corpus"`
	MetricKey string               `yaml:"metric_key" json:"metric_key"`
	Metric    model.MetricSelector `yaml:"metric" json:"metric"`
	Variants  []Variant            `yaml:"variants" json:"variants"`
}

// Request selects the run to summarize.
type Request struct {
	ModelKey  string
	Corpus    string
	MetricKey string
	Metric    model.MetricSelector
	Technique string
	Folds     int
	Naming    string
	Roots     layout.Roots
	// Concurrency bounds how many fold reports are read at once.
	Concurrency int
}

// foldReport is one fold's loaded outputs.
type foldReport struct {
	report  metrics.Value
	seconds float64
	timed   bool
}

// Build loads test.json (and time.txt when present) for every fold of both
// variants and aggregates them. A missing report is an error.
func Build(ctx context.Context, req Request) (*Summary, error) {
	if req.Folds <= 0 {
		return nil, eris.Errorf("summary: folds must be positive, got %d", req.Folds)
	}
	limit := req.Concurrency
	if limit <= 0 {
		limit = 1
	}

	variants := crossval.Variants(req.ModelKey, req.Naming)
	loaded := make([][]foldReport, len(variants))
	for i := range loaded {
		loaded[i] = make([]foldReport, req.Folds)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for vi, v := range variants {
		for fold := 0; fold < req.Folds; fold++ {
			path := layout.RunPath{
				Technique:    req.Technique,
				Corpus:       req.Corpus,
				Architecture: v.Architecture,
				Metric:       req.MetricKey,
				Folds:        req.Folds,
				Fold:         fold,
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fr, err := loadFold(path, req.Roots)
				if err != nil {
					return err
				}
				loaded[vi][fold] = fr
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Summary{Model: req.ModelKey, Corpus: req.Corpus, MetricKey: req.MetricKey, Metric: req.Metric}
	for vi, v := range variants {
		vs, err := aggregate(v, loaded[vi], req.Metric)
		if err != nil {
			return nil, err
		}
		s.Variants = append(s.Variants, vs)
	}
	return s, nil
}

func loadFold(path layout.RunPath, roots layout.Roots) (foldReport, error) {
	reportPath := filepath.Join(path.Dir(roots, layout.CategoryMetrics), metrics.ReportFile)
	report, err := metrics.ReadJSON(reportPath)
	if err != nil {
		return foldReport{}, eris.Wrapf(err, "summary: load fold %d", path.Fold)
	}
	fr := foldReport{report: report}

	timePath := filepath.Join(path.Dir(roots, layout.CategoryTime), crossval.TimeFile)
	if _, err := os.Stat(timePath); err != nil {
		zap.L().Debug("summary: no timing for fold", zap.String("path", timePath))
		return fr, nil
	}
	secs, err := ReadTime(timePath)
	if err != nil {
		return foldReport{}, err
	}
	fr.seconds, fr.timed = secs, true
	return fr, nil
}

// ReadTime parses a time.txt file written by the run driver.
func ReadTime(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "summary: read %s", path)
	}
	text := strings.TrimSpace(string(data))
	text = strings.TrimSpace(strings.TrimSuffix(text, "seconds"))
	secs, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "summary: parse %s", path)
	}
	return secs, nil
}

func aggregate(v crossval.Variant, folds []foldReport, sel model.MetricSelector) (Variant, error) {
	out := Variant{Architecture: v.Architecture, UseCRF: v.UseCRF, Folds: len(folds)}

	selected := make([]float64, 0, len(folds))
	for i, f := range folds {
		val, ok := metrics.Score(f.report, sel.Section, sel.Metric)
		if !ok {
			return Variant{}, eris.Errorf("summary: %s fold %d has no %s %s", v.Architecture, i, sel.Section, sel.Metric)
		}
		selected = append(selected, val)
	}
	sStat, err := describe(selected)
	if err != nil {
		return Variant{}, err
	}
	out.Selected = sStat

	var secs []float64
	for _, f := range folds {
		if f.timed {
			secs = append(secs, f.seconds)
		}
	}
	if len(secs) > 0 {
		st, err := describe(secs)
		if err != nil {
			return Variant{}, err
		}
		out.Seconds = &st
	}

	for _, section := range sections(folds) {
		row := Row{Section: section}
		var p, r, f1, support []float64
		for _, f := range folds {
			// Entity types absent from a fold count as zero.
			pv, _ := metrics.Score(f.report, section, seqeval.Precision)
			rv, _ := metrics.Score(f.report, section, seqeval.Recall)
			fv, _ := metrics.Score(f.report, section, seqeval.F1Score)
			sv, _ := metrics.Score(f.report, section, seqeval.Support)
			p, r, f1, support = append(p, pv), append(r, rv), append(f1, fv), append(support, sv)
		}
		if row.Precision, err = describe(p); err != nil {
			return Variant{}, err
		}
		if row.Recall, err = describe(r); err != nil {
			return Variant{}, err
		}
		if row.F1, err = describe(f1); err != nil {
			return Variant{}, err
		}
		if row.Support, err = stats.Mean(support); err != nil {
			return Variant{}, eris.Wrap(err, "summary: mean support")
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// sections lists report sections in first-seen order across folds, with the
// averages last.
func sections(folds []foldReport) []string {
	averages := map[string]bool{seqeval.MicroAvg: true, seqeval.MacroAvg: true, seqeval.WeightedAvg: true}
	seen := map[string]bool{}
	var labels []string
	for _, f := range folds {
		for _, field := range f.report.Fields() {
			if averages[field.Key] || seen[field.Key] {
				continue
			}
			seen[field.Key] = true
			labels = append(labels, field.Key)
		}
	}
	return append(labels, seqeval.MicroAvg, seqeval.MacroAvg, seqeval.WeightedAvg)
}

func describe(values []float64) (Stat, error) {
	mean, err := stats.Mean(values)
	if err != nil {
		return Stat{}, eris.Wrap(err, "summary: mean")
	}
	st := Stat{Mean: mean}
	if len(values) > 1 {
		sd, err := stats.StdDevS(values)
		if err != nil {
			return Stat{}, eris.Wrap(err, "summary: stddev")
		}
		st.StdDev = sd
	}
	return st, nil
}
