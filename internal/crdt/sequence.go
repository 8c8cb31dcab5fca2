// ABOUTME: RGA sequence shared by arrays and text
// ABOUTME: Items are kept in document order with tombstones; visible indexes skip deleted items

package crdt

import (
	"encoding/json"
	"slices"
)

// item is one element of a sequence. Arrays use value, text uses r.
type item struct {
	id      ID
	origin  *ID
	value   json.RawMessage
	r       rune
	deleted bool
}

type sequence struct {
	items []*item
	index map[ID]*item
}

func newSequence() *sequence {
	return &sequence{index: make(map[ID]*item)}
}

func (s *sequence) has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// position returns the slice position of id, or -1.
func (s *sequence) position(id ID) int {
	for i, it := range s.items {
		if it.id == id {
			return i
		}
	}
	return -1
}

// originPos returns the slice position of it's origin, -1 for the sequence head.
func (s *sequence) originPos(it *item) int {
	if it.origin == nil {
		return -1
	}
	return s.position(*it.origin)
}

// integrate places it after its origin. Siblings sharing the origin are ordered by
// descending id, and each sibling's descendants stay attached to it. The origin must
// already be present.
func (s *sequence) integrate(it *item) int {
	parent := s.originPos(it)
	i := parent + 1
	for i < len(s.items) {
		next := s.items[i]
		np := s.originPos(next)
		if np < parent {
			break
		}
		if np == parent && next.id.Less(it.id) {
			break
		}
		i++
	}
	s.items = slices.Insert(s.items, i, it)
	s.index[it.id] = it
	return i
}

// remove drops an item entirely. Only used to undo an insert.
func (s *sequence) remove(id ID) {
	if p := s.position(id); p >= 0 {
		s.items = slices.Delete(s.items, p, p+1)
	}
	delete(s.index, id)
}

func (s *sequence) length() int {
	n := 0
	for _, it := range s.items {
		if !it.deleted {
			n++
		}
	}
	return n
}

// visible returns the item at visible index i.
func (s *sequence) visible(i int) *item {
	if i < 0 {
		return nil
	}
	n := 0
	for _, it := range s.items {
		if it.deleted {
			continue
		}
		if n == i {
			return it
		}
		n++
	}
	return nil
}

func (s *sequence) visibleItems() []*item {
	out := make([]*item, 0, len(s.items))
	for _, it := range s.items {
		if !it.deleted {
			out = append(out, it)
		}
	}
	return out
}

// seqDelta is one run of a sequence change.
type seqDelta struct {
	retain int
	insert []*item
	delete int
}

// delta describes the change from the state before a transaction to the current one.
func (s *sequence) delta(ch *change) []seqDelta {
	var out []seqDelta
	push := func(d seqDelta) {
		if n := len(out); n > 0 {
			last := &out[n-1]
			switch {
			case d.retain > 0 && last.retain > 0:
				last.retain += d.retain
				return
			case d.delete > 0 && last.delete > 0:
				last.delete += d.delete
				return
			case len(d.insert) > 0 && len(last.insert) > 0:
				last.insert = append(last.insert, d.insert...)
				return
			}
		}
		out = append(out, d)
	}

	for _, it := range s.items {
		switch {
		case ch.inserted[it.id]:
			if !it.deleted {
				push(seqDelta{insert: []*item{it}})
			}
		case ch.deleted[it.id]:
			push(seqDelta{delete: 1})
		case it.deleted:
		default:
			push(seqDelta{retain: 1})
		}
	}

	if n := len(out); n > 0 && out[n-1].retain > 0 {
		out = out[:n-1]
	}
	return out
}
