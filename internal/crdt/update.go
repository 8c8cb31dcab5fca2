// ABOUTME: Wire format for replicated ops and updates
// ABOUTME: Updates are JSON documents so the sync channel and the store can treat them as opaque bytes

package crdt

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Kind is the type of a named container.
type Kind string

const (
	KindArray Kind = "array"
	KindMap   Kind = "map"
	KindText  Kind = "text"
)

// OpKind is the type of a single op.
type OpKind string

const (
	OpInsert OpKind = "insert" // array element or text run
	OpDelete OpKind = "delete" // tombstone a sequence item
	OpSet    OpKind = "set"    // map key write
	OpRemove OpKind = "remove" // map key tombstone
)

// Op is one replicated mutation.
type Op struct {
	Kind      OpKind          `json:"op"`
	Container string          `json:"container"`
	Type      Kind            `json:"type"`
	ID        ID              `json:"id"`
	Origin    *ID             `json:"origin,omitempty"` // insert: left neighbour at insert time
	Target    *ID             `json:"target,omitempty"` // delete: item being removed
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// span is the number of clock ticks the op consumes.
func (op Op) span() int {
	if op.Kind == OpInsert && op.Type == KindText {
		if n := utf8.RuneCountInString(op.Text); n > 0 {
			return n
		}
	}
	return 1
}

func (op Op) validate() error {
	if op.Container == "" {
		return fmt.Errorf("op %s: empty container name", op.ID)
	}
	switch op.Type {
	case KindArray, KindText:
		switch op.Kind {
		case OpInsert:
		case OpDelete:
			if op.Target == nil {
				return fmt.Errorf("op %s: delete without target", op.ID)
			}
		default:
			return fmt.Errorf("op %s: %s not valid on %s", op.ID, op.Kind, op.Type)
		}
	case KindMap:
		if op.Kind != OpSet && op.Kind != OpRemove {
			return fmt.Errorf("op %s: %s not valid on map", op.ID, op.Kind)
		}
	default:
		return fmt.Errorf("op %s: unknown container type %q", op.ID, op.Type)
	}
	return nil
}

// Update is the unit exchanged between replicas: the ops of one transaction, or a
// full state snapshot.
type Update struct {
	Ops []Op `json:"ops"`
}

// Empty reports whether the update carries no ops.
func (u *Update) Empty() bool {
	return u == nil || len(u.Ops) == 0
}

// Encode serializes the update.
func (u *Update) Encode() ([]byte, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encoding update: %w", err)
	}
	return data, nil
}

// DecodeUpdate parses bytes produced by Update.Encode.
func DecodeUpdate(data []byte) (*Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decoding update: %w", err)
	}
	return &u, nil
}
