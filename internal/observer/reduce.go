// ABOUTME: Pure reduction of array deltas into per-item insert and delete changes
// ABOUTME: Inserts advance the cursor, deletes do not, retains advance without emitting

package observer

import (
	"encoding/json"

	"github.com/2389/hearth/internal/crdt"
)

// ChangeKind is the kind of one reduced change.
type ChangeKind int

const (
	Inserted ChangeKind = iota
	Deleted
)

// Change is one item-level change produced by ReduceDelta.
type Change struct {
	Kind  ChangeKind
	Index int
	Item  json.RawMessage // nil for deletes
}

// ReduceDelta flattens a retain/insert/delete delta into item-level changes with the
// index each one applies at.
func ReduceDelta(delta []crdt.ArrayDelta) []Change {
	var out []Change
	index := 0
	for _, d := range delta {
		switch {
		case d.Retain > 0:
			index += d.Retain
		case len(d.Insert) > 0:
			for _, item := range d.Insert {
				out = append(out, Change{Kind: Inserted, Index: index, Item: item})
				index++
			}
		case d.Delete > 0:
			for i := 0; i < d.Delete; i++ {
				out = append(out, Change{Kind: Deleted, Index: index})
			}
		}
	}
	return out
}
