// Package corpus loads column-formatted token/tag corpora split into train,
// dev and test files.
package corpus

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Split names a partition of the corpus.
type Split string

const (
	SplitTrain Split = "train"
	SplitDev   Split = "dev"
	SplitTest  Split = "test"
)

// Splits lists the partitions in load order.
var Splits = []Split{SplitTrain, SplitDev, SplitTest}

// FileName returns the column file holding the split, e.g. train.txt.
func (s Split) FileName() string { return string(s) + ".txt" }

// docStart marks a document boundary in CoNLL-style files.
const docStart = "-DOCSTART-"

// Options controls how column files are read.
type Options struct {
	// TextColumn and TagColumn index the whitespace-separated fields.
	TextColumn int
	TagColumn  int
	// Encoding names the file charset (e.g. "iso-8859-1"). Empty means UTF-8.
	Encoding string
}

// DefaultOptions reads the token from column 0 and the tag from column 1.
func DefaultOptions() Options {
	return Options{TextColumn: 0, TagColumn: 1}
}

// Token is a word with its gold tag.
type Token struct {
	Text string
	Tag  string
}

// Sentence is a non-empty ordered list of tokens.
type Sentence []Token

// Tags returns the tag sequence of the sentence.
func (s Sentence) Tags() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = t.Tag
	}
	return out
}

// Corpus holds the three splits of a labeled fold.
type Corpus struct {
	Dir   string
	Train []Sentence
	Dev   []Sentence
	Test  []Sentence
}

// SplitStats counts the contents of one split.
type SplitStats struct {
	Sentences int `json:"sentences"`
	Tokens    int `json:"tokens"`
}

// Load reads train.txt, dev.txt and test.txt from dir. Any missing or
// malformed file fails the load.
func Load(dir string, opts Options) (*Corpus, error) {
	c := &Corpus{Dir: dir}
	for _, s := range Splits {
		sents, err := LoadFile(filepath.Join(dir, s.FileName()), opts)
		if err != nil {
			return nil, err
		}
		switch s {
		case SplitTrain:
			c.Train = sents
		case SplitDev:
			c.Dev = sents
		case SplitTest:
			c.Test = sents
		}
	}
	return c, nil
}

// LoadFile reads a single column file.
func LoadFile(path string, opts Options) ([]Sentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if opts.Encoding != "" && !strings.EqualFold(opts.Encoding, "utf-8") {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "corpus: unsupported encoding %q", opts.Encoding)
		}
		r = enc.NewDecoder().Reader(f)
	}

	sents, err := Parse(r, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: parse %s", path)
	}
	return sents, nil
}

// Parse reads sentences from column-formatted text. Blank lines separate
// sentences and -DOCSTART- lines are skipped.
func Parse(r io.Reader, opts Options) ([]Sentence, error) {
	need := opts.TextColumn
	if opts.TagColumn > need {
		need = opts.TagColumn
	}
	need++

	var (
		out []Sentence
		cur Sentence
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || fields[0] == docStart {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		if len(fields) < need {
			return nil, eris.Errorf("line %d: got %d columns, want at least %d", line, len(fields), need)
		}
		cur = append(cur, Token{Text: fields[opts.TextColumn], Tag: fields[opts.TagColumn]})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read lines")
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out, nil
}

// Split returns the sentences of s.
func (c *Corpus) Split(s Split) []Sentence {
	switch s {
	case SplitTrain:
		return c.Train
	case SplitDev:
		return c.Dev
	case SplitTest:
		return c.Test
	}
	return nil
}

// Stats counts sentences and tokens per split.
func (c *Corpus) Stats() map[Split]SplitStats {
	out := make(map[Split]SplitStats, len(Splits))
	for _, s := range Splits {
		st := SplitStats{}
		for _, sent := range c.Split(s) {
			st.Sentences++
			st.Tokens += len(sent)
		}
		out[s] = st
	}
	return out
}
