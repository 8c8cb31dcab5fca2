// ABOUTME: Lamport identifiers for replicated ops and sequence items
// ABOUTME: IDs order by clock first and client second, giving a total order across replicas

package crdt

import "fmt"

// ID identifies one op (or one rune of a text insert) across all replicas.
type ID struct {
	Client uint64 `json:"client"`
	Clock  uint64 `json:"clock"`
}

// Less reports whether a sorts before b.
func (a ID) Less(b ID) bool {
	if a.Clock != b.Clock {
		return a.Clock < b.Clock
	}
	return a.Client < b.Client
}

// String renders the id as client@clock.
func (a ID) String() string {
	return fmt.Sprintf("%d@%d", a.Client, a.Clock)
}

// offset returns the id of the n-th rune of a multi-rune text op.
func (a ID) offset(n int) ID {
	return ID{Client: a.Client, Clock: a.Clock + uint64(n)}
}
