package trainer

import (
	"github.com/rotisserie/eris"
)

// Outside is the tag of a token outside every entity.
const Outside = "O"

// Span is a predicted entity over tokens [Start, End).
type Span struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// Prediction is the trainer's reply to a predict request.
type Prediction struct {
	Tokens []string `json:"tokens"`
	Spans  []Span   `json:"spans"`
}

// MissingLabelPolicy decides what happens to a span that carries no type.
type MissingLabelPolicy int

const (
	// MissingLabelDefaultOuter tags the tokens of an untyped span as O, the
	// same as tokens no span covers.
	MissingLabelDefaultOuter MissingLabelPolicy = iota
	// MissingLabelError rejects untyped spans.
	MissingLabelError
)

// SpansToBIO converts spans over n tokens to one BIO tag per token using
// MissingLabelDefaultOuter.
func SpansToBIO(n int, spans []Span) ([]string, error) {
	return SpansToBIOWithPolicy(n, spans, MissingLabelDefaultOuter)
}

// SpansToBIOWithPolicy converts spans over n tokens to BIO tags. The first
// token of a span is B-<type>, the rest I-<type>. Later spans overwrite
// earlier ones where they overlap. Spans outside [0, n) are an error.
func SpansToBIOWithPolicy(n int, spans []Span, policy MissingLabelPolicy) ([]string, error) {
	tags := make([]string, n)
	for i := range tags {
		tags[i] = Outside
	}

	for _, s := range spans {
		if s.Start < 0 || s.End > n || s.Start >= s.End {
			return nil, eris.Errorf("trainer: span [%d, %d) out of range for %d tokens", s.Start, s.End, n)
		}
		if s.Type == "" {
			if policy == MissingLabelError {
				return nil, eris.Errorf("trainer: span [%d, %d) has no label", s.Start, s.End)
			}
			continue
		}
		for i := s.Start; i < s.End; i++ {
			prefix := "I-"
			if i == s.Start {
				prefix = "B-"
			}
			tags[i] = prefix + s.Type
		}
	}
	return tags, nil
}

// Tags returns the BIO tag of every token of p.
func (p *Prediction) Tags() ([]string, error) {
	return SpansToBIO(len(p.Tokens), p.Spans)
}
