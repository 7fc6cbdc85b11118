// Package metrics turns a fine-tuned tagger's raw test predictions into
// sentence-level tag sequences and an entity-level metrics report.
package metrics

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// File names inside a fold's model and metrics directories.
const (
	PredictionsFile   = "test.tsv"
	ReconstructedFile = "test.txt"
	ReportFile        = "test.json"
)

// recordFields is the number of fields of a well-formed prediction line:
// token, true tag, predicted tag.
const recordFields = 3

// MalformedLinePolicy decides how a line that is neither blank nor a
// three-field record is read.
type MalformedLinePolicy int

const (
	// MalformedLineTreatAsSeparator closes the current sentence, exactly like a
	// blank line. Nothing is reported.
	MalformedLineTreatAsSeparator MalformedLinePolicy = iota
	// MalformedLineError fails the read with the offending line number.
	MalformedLineError
)

// Token is one reconstructed prediction record.
type Token struct {
	Text string
	True string
	Pred string
}

// Reconstruct rewrites raw predictions into the normalized
// "<token> <true> <pred>" format. Blank lines pass through as blank lines.
// Records with more than three fields keep the first three; shorter ones are
// written as-is and end up as sentence separators when read back.
func Reconstruct(r io.Reader, w io.Writer) error {
	sc := newScanner(r)
	bw := bufio.NewWriter(w)

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > recordFields {
			fields = fields[:recordFields]
		}
		if _, err := bw.WriteString(strings.Join(fields, " ") + "\n"); err != nil {
			return eris.Wrap(err, "metrics: write reconstructed line")
		}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "metrics: read predictions")
	}
	return eris.Wrap(bw.Flush(), "metrics: flush reconstructed file")
}

// ReconstructFile runs Reconstruct from tsvPath into txtPath.
func ReconstructFile(tsvPath, txtPath string) error {
	in, err := os.Open(tsvPath)
	if err != nil {
		return eris.Wrapf(err, "metrics: open %s", tsvPath)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(txtPath)
	if err != nil {
		return eris.Wrapf(err, "metrics: create %s", txtPath)
	}

	if err := Reconstruct(in, out); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(out.Close(), "metrics: close %s", txtPath)
}

// ReadSentences groups reconstructed records into sentences and returns the
// parallel true and predicted tag sequences. Lines without exactly three
// fields end the current sentence.
func ReadSentences(r io.Reader) ([][]string, [][]string, error) {
	return ReadSentencesWithPolicy(r, MalformedLineTreatAsSeparator)
}

// ReadSentencesWithPolicy is ReadSentences with an explicit policy for
// malformed lines. Blank lines are always separators.
func ReadSentencesWithPolicy(r io.Reader, policy MalformedLinePolicy) ([][]string, [][]string, error) {
	var (
		yTrue, yPred       [][]string
		sentTrue, sentPred []string
	)

	flush := func() {
		if len(sentTrue) > 0 && len(sentPred) > 0 {
			yTrue = append(yTrue, sentTrue)
			yPred = append(yPred, sentPred)
			sentTrue, sentPred = nil, nil
		}
	}

	sc := newScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		switch {
		case len(fields) == recordFields:
			sentTrue = append(sentTrue, fields[1])
			sentPred = append(sentPred, fields[2])
		case len(fields) == 0 || policy == MalformedLineTreatAsSeparator:
			flush()
		default:
			return nil, nil, eris.Errorf("metrics: line %d has %d fields, want %d", line, len(fields), recordFields)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "metrics: read sentences")
	}
	flush()

	return yTrue, yPred, nil
}

// ReadSentencesFile runs ReadSentences on the file at path.
func ReadSentencesFile(path string) ([][]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "metrics: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadSentences(f)
}

// ReadTokens parses reconstructed records, keeping token text alongside the
// tags. Sentence boundaries follow the same rules as ReadSentences.
func ReadTokens(r io.Reader) ([][]Token, error) {
	var out [][]Token
	var cur []Token

	sc := newScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == recordFields {
			cur = append(cur, Token{Text: fields[0], True: fields[1], Pred: fields[2]})
			continue
		}
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "metrics: read tokens")
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out, nil
}

// newScanner returns a line scanner that tolerates long lines.
func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return sc
}
