package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict <model_dir> <text>",
	Short: "Tag a sentence with a fine-tuned model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pred, err := newFineTuner().Predict(cmd.Context(), args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "predict")
		}
		tags, err := pred.Tags()
		if err != nil {
			return err
		}
		formatTags(os.Stdout, pred.Tokens, tags)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
}

// formatTags writes one "token tag" line per token.
func formatTags(out io.Writer, tokens, tags []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, tok := range tokens {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", tok, tags[i])
	}
	_ = w.Flush()
}
