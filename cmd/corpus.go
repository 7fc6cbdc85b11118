package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nercv/internal/corpus"
	"github.com/sells-group/nercv/internal/layout"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus <corpus_name>",
	Short: "Show split statistics and label dictionaries of a corpus fold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fold, _ := cmd.Flags().GetInt("fold")
		folds, _ := cmd.Flags().GetInt("folds")
		if folds <= 0 {
			folds = cfg.CV.Folds
		}

		dir := layout.CorpusDir(cfg.Paths.Corpora, args[0], folds, fold)
		c, err := corpus.Load(dir, corpus.Options{
			TextColumn: cfg.Corpus.TextColumn,
			TagColumn:  cfg.Corpus.TagColumn,
			Encoding:   cfg.Corpus.Encoding,
		})
		if err != nil {
			return eris.Wrap(err, "load corpus")
		}

		formatCorpus(os.Stdout, dir, c)
		return nil
	},
}

func init() {
	corpusCmd.Flags().Int("fold", 0, "fold index")
	corpusCmd.Flags().Int("folds", 0, "number of folds (defaults to cv.folds)")
	rootCmd.AddCommand(corpusCmd)
}

// formatCorpus writes per-split counts followed by both label dictionaries.
func formatCorpus(out io.Writer, dir string, c *corpus.Corpus) {
	stats := c.Stats()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Corpus:\t%s\n\n", dir)
	_, _ = fmt.Fprintln(w, "SPLIT\tSENTENCES\tTOKENS")
	_, _ = fmt.Fprintln(w, "-----\t---------\t------")
	for _, s := range corpus.Splits {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", s, stats[s].Sentences, stats[s].Tokens)
	}
	_, _ = fmt.Fprintf(w, "\nEntity types:\t%s\n", strings.Join(c.SpanDictionary().Items(), ", "))
	_, _ = fmt.Fprintf(w, "Tags:\t%s\n", strings.Join(c.TagDictionary().Items(), ", "))
	_ = w.Flush()
}
