// Package seqeval computes entity-level classification metrics for BIO/IOBES
// tagged sequences, following the conlleval chunking rules.
package seqeval

import (
	"strings"
	"unicode/utf8"
)

// outside is the tag that marks a token outside of any entity.
const outside = "O"

// Entity is a typed chunk spanning the inclusive token range [Start, End].
// Offsets index the flattened sequence, where every sentence is followed by
// one synthetic outside tag.
type Entity struct {
	Type  string
	Start int
	End   int
}

// Entities extracts the chunks from a list of tagged sentences.
func Entities(sentences [][]string) []Entity {
	var flat []string
	for _, s := range sentences {
		flat = append(flat, s...)
		flat = append(flat, outside)
	}
	return SequenceEntities(flat)
}

// SequenceEntities extracts the chunks from a single flat tag sequence.
func SequenceEntities(seq []string) []Entity {
	var (
		chunks   []Entity
		prevTag  = "O"
		prevType = ""
		begin    = 0
	)

	// A trailing outside tag closes any chunk still open at the end.
	n := len(seq)
	for i := 0; i <= n; i++ {
		chunk := outside
		if i < n {
			chunk = seq[i]
		}
		tag, typ := splitTag(chunk)

		if endOfChunk(prevTag, tag, prevType, typ) {
			chunks = append(chunks, Entity{Type: prevType, Start: begin, End: i - 1})
		}
		if startOfChunk(prevTag, tag, prevType, typ) {
			begin = i
		}
		prevTag, prevType = tag, typ
	}
	return chunks
}

// splitTag separates the position marker (first character) from the entity
// type. "B-PER" yields ("B", "PER"); "O" yields ("O", "_"). Tags without a
// prefix are split the same way, so "PER" yields ("P", "ER").
func splitTag(chunk string) (string, string) {
	if chunk == "" {
		return outside, "_"
	}
	_, size := utf8.DecodeRuneInString(chunk)
	tag := chunk[:size]
	rest := chunk[size:]

	typ := rest
	if i := strings.Index(rest, "-"); i >= 0 {
		typ = rest[i+1:]
	}
	if typ == "" {
		typ = "_"
	}
	return tag, typ
}

func endOfChunk(prevTag, tag, prevType, typ string) bool {
	switch {
	case prevTag == "E", prevTag == "S":
		return true
	case prevTag == "B" && (tag == "B" || tag == "S" || tag == "O"):
		return true
	case prevTag == "I" && (tag == "B" || tag == "S" || tag == "O"):
		return true
	case prevTag != "O" && prevTag != "." && prevType != typ:
		return true
	}
	return false
}

func startOfChunk(prevTag, tag, prevType, typ string) bool {
	switch {
	case tag == "B", tag == "S":
		return true
	case prevTag == "E" && (tag == "E" || tag == "I"):
		return true
	case prevTag == "S" && (tag == "E" || tag == "I"):
		return true
	case prevTag == "O" && (tag == "E" || tag == "I"):
		return true
	case tag != "O" && tag != "." && prevType != typ:
		return true
	}
	return false
}
