// ABOUTME: Text container for rich-text fragments such as wiki page bodies
// ABOUTME: A rune sequence with string-valued deltas

package crdt

import "strings"

// TextDelta is one run of a text change. Exactly one field is set.
type TextDelta struct {
	Retain int
	Insert string
	Delete int
}

// TextEvent is delivered to Text observers once per frame.
type TextEvent struct {
	Delta  []TextDelta
	Origin any
	Local  bool
}

// Text is a handle on a named text container.
type Text struct {
	doc *Doc
	c   *container
}

// Name returns the container name.
func (t *Text) Name() string {
	return t.c.name
}

// String returns the visible text.
func (t *Text) String() string {
	t.doc.mu.RLock()
	defer t.doc.mu.RUnlock()
	return textString(t.c.seq)
}

// Len returns the number of visible runes.
func (t *Text) Len() int {
	t.doc.mu.RLock()
	defer t.doc.mu.RUnlock()
	return t.c.seq.length()
}

func textString(s *sequence) string {
	var b strings.Builder
	for _, it := range s.items {
		if !it.deleted {
			b.WriteRune(it.r)
		}
	}
	return b.String()
}

// Observe registers fn for every frame that changes this text.
func (t *Text) Observe(fn func(TextEvent)) func() {
	return t.doc.observe(t.c, func(ev containerEvent) {
		out := make([]TextDelta, 0, len(ev.seq))
		for _, d := range ev.seq {
			td := TextDelta{Retain: d.retain, Delete: d.delete}
			if len(d.insert) > 0 {
				var b strings.Builder
				for _, it := range d.insert {
					b.WriteRune(it.r)
				}
				td.Insert = b.String()
			}
			out = append(out, td)
		}
		fn(TextEvent{Delta: out, Origin: ev.origin, Local: ev.local})
	})
}

// In binds the text to an open transaction.
func (t *Text) In(tx *Txn) TextView {
	tx.check(t.doc)
	return TextView{t: t, tx: tx}
}

// TextView edits text inside a transaction.
type TextView struct {
	t  *Text
	tx *Txn
}

// String returns the visible text, including edits made earlier in the frame.
func (v TextView) String() string {
	v.tx.check(v.t.doc)
	return textString(v.t.c.seq)
}

// Len returns the number of visible runes.
func (v TextView) Len() int {
	v.tx.check(v.t.doc)
	return v.t.c.seq.length()
}

// Insert places s at rune index.
func (v TextView) Insert(index int, s string) error {
	v.tx.checkWrite(v.t.doc)
	return v.tx.localInsertText(v.t.c, index, s)
}

// Delete removes length runes starting at index.
func (v TextView) Delete(index, length int) error {
	v.tx.checkWrite(v.t.doc)
	return v.tx.localDelete(v.t.c, index, length)
}

// Replace swaps the whole content for s.
func (v TextView) Replace(s string) error {
	if err := v.Delete(0, v.Len()); err != nil {
		return err
	}
	return v.Insert(0, s)
}
