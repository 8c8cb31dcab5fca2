// ABOUTME: Array container: an ordered sequence of JSON values
// ABOUTME: Outside reads take the read lock; writes only happen through an ArrayView bound to a Txn

package crdt

import (
	"encoding/json"
	"fmt"
)

// ArrayDelta is one run of an array change. Exactly one field is set.
type ArrayDelta struct {
	Retain int
	Insert []json.RawMessage
	Delete int
}

// ArrayEvent is delivered to Array observers once per frame.
type ArrayEvent struct {
	Delta  []ArrayDelta
	Origin any
	Local  bool
}

func arrayDelta(in []seqDelta) []ArrayDelta {
	out := make([]ArrayDelta, 0, len(in))
	for _, d := range in {
		ad := ArrayDelta{Retain: d.retain, Delete: d.delete}
		for _, it := range d.insert {
			ad.Insert = append(ad.Insert, it.value)
		}
		out = append(out, ad)
	}
	return out
}

// Array is a handle on a named array container.
type Array struct {
	doc *Doc
	c   *container
}

// Name returns the container name.
func (a *Array) Name() string {
	return a.c.name
}

// Len returns the number of visible elements.
func (a *Array) Len() int {
	a.doc.mu.RLock()
	defer a.doc.mu.RUnlock()
	return a.c.seq.length()
}

// Get returns the raw element at index.
func (a *Array) Get(index int) (json.RawMessage, bool) {
	a.doc.mu.RLock()
	defer a.doc.mu.RUnlock()
	it := a.c.seq.visible(index)
	if it == nil {
		return nil, false
	}
	return it.value, true
}

// ToArray returns a copy of every visible element in order.
func (a *Array) ToArray() []json.RawMessage {
	a.doc.mu.RLock()
	defer a.doc.mu.RUnlock()
	return rawValues(a.c.seq)
}

func rawValues(s *sequence) []json.RawMessage {
	items := s.visibleItems()
	out := make([]json.RawMessage, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out
}

// Observe registers fn for every frame that changes this array.
func (a *Array) Observe(fn func(ArrayEvent)) func() {
	return a.doc.observe(a.c, func(ev containerEvent) {
		fn(ArrayEvent{Delta: arrayDelta(ev.seq), Origin: ev.origin, Local: ev.local})
	})
}

// In binds the array to an open transaction.
func (a *Array) In(tx *Txn) ArrayView {
	tx.check(a.doc)
	return ArrayView{a: a, tx: tx}
}

// ArrayView reads and writes an array inside a transaction.
type ArrayView struct {
	a  *Array
	tx *Txn
}

// Len returns the number of visible elements, including writes made earlier in the frame.
func (v ArrayView) Len() int {
	v.tx.check(v.a.doc)
	return v.a.c.seq.length()
}

// Get returns the raw element at index.
func (v ArrayView) Get(index int) (json.RawMessage, bool) {
	v.tx.check(v.a.doc)
	it := v.a.c.seq.visible(index)
	if it == nil {
		return nil, false
	}
	return it.value, true
}

// ToArray returns a copy of every visible element.
func (v ArrayView) ToArray() []json.RawMessage {
	v.tx.check(v.a.doc)
	return rawValues(v.a.c.seq)
}

// Insert places values at index, shifting later elements right.
func (v ArrayView) Insert(index int, values ...any) error {
	v.tx.checkWrite(v.a.doc)
	raws, err := encodeValues(values)
	if err != nil {
		return err
	}
	return v.tx.localInsert(v.a.c, index, raws)
}

// Push appends values.
func (v ArrayView) Push(values ...any) error {
	return v.Insert(v.Len(), values...)
}

// Delete removes length elements starting at index.
func (v ArrayView) Delete(index, length int) error {
	v.tx.checkWrite(v.a.doc)
	return v.tx.localDelete(v.a.c, index, length)
}

func encodeValues(values []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding element %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}
