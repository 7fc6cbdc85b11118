package corpus

import (
	"sort"

	"github.com/sells-group/nercv/internal/seqeval"
)

// Dictionary is an ordered set of labels. It never contains an unknown-label
// entry.
type Dictionary struct {
	items []string
	index map[string]int
}

func newDictionary() *Dictionary {
	return &Dictionary{index: make(map[string]int)}
}

func (d *Dictionary) add(label string) {
	if _, ok := d.index[label]; ok {
		return
	}
	d.index[label] = len(d.items)
	d.items = append(d.items, label)
}

// Items returns the labels in dictionary order.
func (d *Dictionary) Items() []string {
	return append([]string(nil), d.items...)
}

// Len returns the number of labels.
func (d *Dictionary) Len() int { return len(d.items) }

// Index returns the position of label, or -1 when it is not present.
func (d *Dictionary) Index(label string) int {
	if i, ok := d.index[label]; ok {
		return i
	}
	return -1
}

// Has reports whether label is present.
func (d *Dictionary) Has(label string) bool {
	_, ok := d.index[label]
	return ok
}

// TagDictionary collects every distinct tag value across all splits in
// first-seen order.
func (c *Corpus) TagDictionary() *Dictionary {
	d := newDictionary()
	for _, s := range Splits {
		for _, sent := range c.Split(s) {
			for _, tok := range sent {
				d.add(tok.Tag)
			}
		}
	}
	return d
}

// SpanDictionary collects the entity types found in the training split,
// most frequent first. Ties keep first-seen order.
func (c *Corpus) SpanDictionary() *Dictionary {
	counts := make(map[string]int)
	var order []string
	for _, sent := range c.Train {
		for _, e := range seqeval.SequenceEntities(sent.Tags()) {
			if _, ok := counts[e.Type]; !ok {
				order = append(order, e.Type)
			}
			counts[e.Type]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	d := newDictionary()
	for _, l := range order {
		d.add(l)
	}
	return d
}
