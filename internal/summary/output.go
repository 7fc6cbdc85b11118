package summary

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"
)

// WriteTable writes one block per variant: the selected metric, timing and a
// row per report section with mean ± stddev.
func (s *Summary) WriteTable(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, v := range s.Variants {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s %s over %d folds:\t%s\n",
			v.Architecture, s.Metric.Section, s.Metric.Metric, v.Folds, formatStat(v.Selected))
		if v.Seconds != nil {
			_, _ = fmt.Fprintf(w, "\ttraining time (s):\t%s\n", formatStat(*v.Seconds))
		}
		_, _ = fmt.Fprintln(w, "SECTION\tPRECISION\tRECALL\tF1-SCORE\tSUPPORT")
		for _, r := range v.Rows {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\n",
				r.Section, formatStat(r.Precision), formatStat(r.Recall), formatStat(r.F1), r.Support)
		}
	}
	return eris.Wrap(w.Flush(), "summary: write table")
}

func formatStat(st Stat) string {
	return fmt.Sprintf("%.4f ± %.4f", st.Mean, st.StdDev)
}

// WriteYAML encodes the summary as YAML.
func (s *Summary) WriteYAML(out io.Writer) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return eris.Wrap(err, "summary: encode yaml")
	}
	return eris.Wrap(enc.Close(), "summary: close yaml encoder")
}

// xlsxHeader is the column layout of every variant sheet.
var xlsxHeader = []string{"section", "precision", "precision_sd", "recall", "recall_sd", "f1-score", "f1-score_sd", "support"}

// WriteXLSX saves the summary to path with one sheet per variant.
func (s *Summary) WriteXLSX(path string) error {
	f := xlsx.NewFile()
	for _, v := range s.Variants {
		sheet, err := f.AddSheet(sheetName(v.Architecture))
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %s", v.Architecture)
		}

		header := sheet.AddRow()
		for _, h := range xlsxHeader {
			header.AddCell().SetString(h)
		}
		for _, r := range v.Rows {
			row := sheet.AddRow()
			row.AddCell().SetString(r.Section)
			for _, val := range []float64{
				r.Precision.Mean, r.Precision.StdDev,
				r.Recall.Mean, r.Recall.StdDev,
				r.F1.Mean, r.F1.StdDev,
				r.Support,
			} {
				row.AddCell().SetFloat(val)
			}
		}
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

// sheetName trims a name to Excel's 31 character sheet limit.
func sheetName(name string) string {
	const maxSheetName = 31
	r := []rune(name)
	if len(r) > maxSheetName {
		r = r[:maxSheetName]
	}
	return string(r)
}
