package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nercv/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nercv",
	Short: "Cross-validated NER fine-tuning driver",
	Long:  "Fine-tunes a transformer NER tagger with CRF and linear heads over k corpus folds, scores every fold with seqeval metrics and records timing and run history.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
