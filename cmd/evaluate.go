package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nercv/internal/crossval"
	"github.com/sells-group/nercv/internal/layout"
	"github.com/sells-group/nercv/internal/metrics"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <model_key> <corpus_name> <metric_key>",
	Short: "Re-score an existing fold from its test.tsv",
	Long:  "Reconstructs test.txt from the fold's raw predictions, rebuilds the classification report and rewrites test.json. No training is run.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}
		if _, err := cfg.ResolveModel(args[0]); err != nil {
			return err
		}
		if _, err := cfg.ResolveMetric(args[2]); err != nil {
			return err
		}

		useCRF, _ := cmd.Flags().GetBool("crf")
		fold, _ := cmd.Flags().GetInt("fold")
		showErrors, _ := cmd.Flags().GetBool("errors")
		if fold < 0 || fold >= cfg.CV.Folds {
			return eris.Errorf("fold %d out of range [0, %d)", fold, cfg.CV.Folds)
		}

		path := layout.RunPath{
			Technique:    cfg.CV.Technique,
			Corpus:       args[1],
			Architecture: crossval.VariantFor(args[0], cfg.CV.ArchitectureNaming, useCRF).Architecture,
			Metric:       args[2],
			Folds:        cfg.CV.Folds,
			Fold:         fold,
		}
		roots := cfg.Paths.Roots()
		modelDir := path.Dir(roots, layout.CategoryModels)

		res, err := metrics.Evaluate(modelDir, path.Dir(roots, layout.CategoryMetrics))
		if err != nil {
			return eris.Wrap(err, "evaluate fold")
		}
		zap.L().Info("fold evaluated",
			zap.String("architecture", path.Architecture),
			zap.Int("fold", fold),
			zap.String("report", res.Path),
		)

		_, _ = fmt.Fprint(os.Stdout, res.Report.Text(metrics.ReportDigits))

		if showErrors {
			f, err := os.Open(filepath.Join(modelDir, metrics.ReconstructedFile))
			if err != nil {
				return eris.Wrap(err, "open reconstructed predictions")
			}
			defer f.Close() //nolint:errcheck

			sentences, err := metrics.ReadTokens(f)
			if err != nil {
				return err
			}
			formatTagErrors(os.Stdout, sentences)
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().Bool("crf", true, "evaluate the CRF variant (false for the linear variant)")
	evaluateCmd.Flags().Int("fold", 0, "fold index")
	evaluateCmd.Flags().Bool("errors", false, "list tokens whose predicted tag differs from the true tag")
	rootCmd.AddCommand(evaluateCmd)
}

// formatTagErrors writes every mismatched token with its sentence and
// position.
func formatTagErrors(out io.Writer, sentences [][]metrics.Token) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nSENTENCE\tTOKEN\tTEXT\tTRUE\tPRED")
	_, _ = fmt.Fprintln(w, "--------\t-----\t----\t----\t----")
	n := 0
	for si, s := range sentences {
		for ti, tok := range s {
			if tok.True == tok.Pred {
				continue
			}
			n++
			_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", si, ti, tok.Text, tok.True, tok.Pred)
		}
	}
	_, _ = fmt.Fprintf(w, "\n%d mismatched tokens\n", n)
	_ = w.Flush()
}
