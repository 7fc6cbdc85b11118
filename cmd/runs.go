package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nercv/internal/model"
	"github.com/sells-group/nercv/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect fold run history",
	Long:  "Commands for listing and viewing recorded cross-validation folds.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fold runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		modelKey, _ := cmd.Flags().GetString("model")
		corpusName, _ := cmd.Flags().GetString("corpus")
		architecture, _ := cmd.Flags().GetString("architecture")
		metric, _ := cmd.Flags().GetString("metric")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status:       model.RunStatus(status),
			ModelKey:     modelKey,
			Corpus:       corpusName,
			Architecture: architecture,
			MetricKey:    metric,
			Limit:        limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

// runDetail is a fold run with its per-label scores.
type runDetail struct {
	*model.FoldRun
	LabelScores []model.LabelScore `json:"label_scores"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a fold run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		labels, err := st.ListLabelScores(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show labels")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{FoldRun: run, LabelScores: labels})
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("model", "", "filter by model key")
	runsListCmd.Flags().String("corpus", "", "filter by corpus name")
	runsListCmd.Flags().String("architecture", "", "filter by architecture, e.g. BERTimbau_crf")
	runsListCmd.Flags().String("metric", "", "filter by metric key")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.FoldRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tARCHITECTURE\tCORPUS\tFOLD\tSTATUS\tMICRO_F1\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------------\t------\t----\t------\t--------\t-------\t--------")

	for _, r := range runs {
		f1 := "-"
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		if r.Result != nil {
			f1 = fmt.Sprintf("%.4f", r.Result.MicroF1)
			dur = (time.Duration(r.Result.DurationSecs * float64(time.Second))).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Spec.Architecture,
			r.Spec.Corpus,
			r.Spec.Fold, r.Spec.Folds,
			r.Status,
			f1,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
