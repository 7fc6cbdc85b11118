package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nercv/internal/summary"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <model_key> <corpus_name> <metric_key>",
	Short: "Aggregate fold reports into cross-fold means and standard deviations",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("summary"); err != nil {
			return err
		}
		if _, err := cfg.ResolveModel(args[0]); err != nil {
			return err
		}
		selector, err := cfg.ResolveMetric(args[2])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		if format != "table" && format != "yaml" {
			return eris.Errorf("unsupported format %q (table or yaml)", format)
		}

		s, err := summary.Build(cmd.Context(), summary.Request{
			ModelKey:    args[0],
			Corpus:      args[1],
			MetricKey:   args[2],
			Metric:      selector,
			Technique:   cfg.CV.Technique,
			Folds:       cfg.CV.Folds,
			Naming:      cfg.CV.ArchitectureNaming,
			Roots:       cfg.Paths.Roots(),
			Concurrency: cfg.Summary.Concurrency,
		})
		if err != nil {
			return eris.Wrap(err, "build summary")
		}

		if xlsxPath != "" {
			if err := s.WriteXLSX(xlsxPath); err != nil {
				return err
			}
			zap.L().Info("summary spreadsheet written", zap.String("path", xlsxPath))
		}

		if format == "yaml" {
			return s.WriteYAML(os.Stdout)
		}
		return s.WriteTable(os.Stdout)
	},
}

func init() {
	summaryCmd.Flags().String("format", "table", "output format: table or yaml")
	summaryCmd.Flags().String("xlsx", "", "also write the summary to this .xlsx file")
	rootCmd.AddCommand(summaryCmd)
}
