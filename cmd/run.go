package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nercv/internal/crossval"
	"github.com/sells-group/nercv/internal/model"
	"github.com/sells-group/nercv/internal/trainer"
)

var runCmd = &cobra.Command{
	Use:   "run <model_key> <corpus_name> <metric_key>",
	Short: "Fine-tune and evaluate every fold under both head variants",
	Long:  "Runs folds 0..k-1 with a CRF head, then folds 0..k-1 with a linear head. Each fold is fine-tuned by the trainer command, scored, timed and recorded.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}
		// Fail on unknown keys before touching the store or the trainer.
		if _, err := cfg.ResolveModel(args[0]); err != nil {
			return err
		}
		if _, err := cfg.ResolveMetric(args[2]); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		tuner := newFineTuner()
		driver := crossval.NewDriver(cfg, tuner, st)

		runs, err := driver.Run(ctx, crossval.Params{
			ModelKey:  args[0],
			Corpus:    args[1],
			MetricKey: args[2],
		})
		formatFoldRuns(os.Stdout, runs)
		if err != nil {
			return eris.Wrap(err, "cross-validation run")
		}

		zap.L().Info("cross-validation complete",
			zap.String("model", args[0]),
			zap.String("corpus", args[1]),
			zap.Int("folds", len(runs)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// newFineTuner builds the trainer process wrapper from config.
func newFineTuner() *trainer.ExecFineTuner {
	return trainer.NewExecFineTuner(cfg.Trainer.Command, cfg.Trainer.Args,
		trainer.WithWorkDir(cfg.Trainer.WorkDir),
		trainer.WithLogger(zap.L()),
	)
}

// formatFoldRuns writes one line per finished fold.
func formatFoldRuns(out io.Writer, runs []model.FoldRun) {
	if len(runs) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARCHITECTURE\tFOLD\tMICRO_F1\tMACRO_F1\tSECONDS")
	_, _ = fmt.Fprintln(w, "------------\t----\t--------\t--------\t-------")
	for _, r := range runs {
		if r.Result == nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d/%d\t%.4f\t%.4f\t%.1f\n",
			r.Spec.Architecture,
			r.Spec.Fold, r.Spec.Folds,
			r.Result.MicroF1,
			r.Result.MacroF1,
			r.Result.DurationSecs,
		)
	}
	_ = w.Flush()
}
