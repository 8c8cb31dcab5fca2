// ABOUTME: Transaction frames: op integration, change tracking, and rollback
// ABOUTME: Local and remote ops go through the same integrate path so events are computed identically

package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Txn is one transaction frame. It is only valid inside the function passed to
// Doc.Transact (or internally during ApplyUpdate).
type Txn struct {
	doc      *Doc
	origin   any
	local    bool
	closed   bool
	readOnly bool

	ops     []Op
	undo    []func()
	clock0  uint64
	changes map[*container]*change
	order   []*container
}

// change accumulates what one transaction did to one container.
type change struct {
	inserted map[ID]bool
	deleted  map[ID]bool          // items visible before the frame and deleted in it
	keys     map[string]*mapEntry // entry before the first write in the frame (nil if absent)
}

func newTxn(d *Doc, origin any, local bool) *Txn {
	return &Txn{
		doc:     d,
		origin:  origin,
		local:   local,
		clock0:  d.clock,
		changes: make(map[*container]*change),
	}
}

// Origin returns the value passed to TransactWithOrigin (nil for Transact).
func (tx *Txn) Origin() any {
	return tx.origin
}

// Local reports whether the frame was started by this replica.
func (tx *Txn) Local() bool {
	return tx.local
}

func (tx *Txn) check(d *Doc) {
	if tx == nil || tx.closed {
		panic("crdt: container used outside of an open transaction")
	}
	if tx.doc != d {
		panic("crdt: container used with a transaction from another document")
	}
}

func (tx *Txn) checkWrite(d *Doc) {
	tx.check(d)
	if tx.readOnly {
		panic("crdt: write inside a read-only view")
	}
}

func (tx *Txn) changeFor(c *container) *change {
	ch, ok := tx.changes[c]
	if !ok {
		ch = &change{
			inserted: make(map[ID]bool),
			deleted:  make(map[ID]bool),
			keys:     make(map[string]*mapEntry),
		}
		tx.changes[c] = ch
		tx.order = append(tx.order, c)
	}
	return ch
}

// nextID reserves span clock ticks for a local op.
func (tx *Txn) nextID(span int) ID {
	d := tx.doc
	d.clock++
	id := ID{Client: d.clientID, Clock: d.clock}
	d.clock += uint64(span - 1)
	return id
}

// ready reports whether every dependency of op is integrated.
func (tx *Txn) ready(c *container, op Op) bool {
	switch op.Kind {
	case OpInsert:
		return op.Origin == nil || c.seq.has(*op.Origin)
	case OpDelete:
		return c.seq.has(*op.Target)
	}
	return true
}

// integrate applies op to the document state, recording undo and change info.
func (tx *Txn) integrate(c *container, op Op) {
	d := tx.doc
	ch := tx.changeFor(c)

	switch op.Kind {
	case OpInsert:
		if op.Type == KindText {
			origin := op.Origin
			for i, r := range []rune(op.Text) {
				it := &item{id: op.ID.offset(i), origin: origin, r: r}
				tx.insertItem(c, ch, it)
				id := it.id
				origin = &id
			}
		} else {
			tx.insertItem(c, ch, &item{id: op.ID, origin: op.Origin, value: op.Value})
		}

	case OpDelete:
		it := c.seq.index[*op.Target]
		if !it.deleted {
			it.deleted = true
			if !ch.inserted[it.id] {
				ch.deleted[it.id] = true
			}
			tx.undo = append(tx.undo, func() { it.deleted = false })
		}

	case OpSet, OpRemove:
		cur := c.m.entries[op.Key]
		if cur == nil || cur.id.Less(op.ID) {
			if _, seen := ch.keys[op.Key]; !seen {
				ch.keys[op.Key] = cur
			}
			c.m.entries[op.Key] = &mapEntry{id: op.ID, value: op.Value, deleted: op.Kind == OpRemove}
			key := op.Key
			tx.undo = append(tx.undo, func() {
				if cur == nil {
					delete(c.m.entries, key)
				} else {
					c.m.entries[key] = cur
				}
			})
		}
	}

	if end := op.ID.Clock + uint64(op.span()-1); end > d.clock {
		d.clock = end
	}
	d.log = append(d.log, op)
	d.seen[op.ID] = struct{}{}
	tx.ops = append(tx.ops, op)
	id := op.ID
	tx.undo = append(tx.undo, func() {
		d.log = d.log[:len(d.log)-1]
		delete(d.seen, id)
	})
}

func (tx *Txn) insertItem(c *container, ch *change, it *item) {
	c.seq.integrate(it)
	ch.inserted[it.id] = true
	id := it.id
	tx.undo = append(tx.undo, func() { c.seq.remove(id) })
}

// rollback undoes every mutation in reverse order.
func (tx *Txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.doc.clock = tx.clock0
	tx.undo = nil
	tx.ops = nil
	tx.changes = nil
	tx.order = nil
}

// notification is everything a committed frame has to deliver.
type notification struct {
	events []containerEvent
	update *Update
	origin any
	local  bool
}

// containerEvent is the untyped event for one container.
type containerEvent struct {
	c      *container
	seq    []seqDelta
	keys   map[string]KeyChange
	origin any
	local  bool
}

// finish closes the frame and computes its notification.
func (tx *Txn) finish() *notification {
	tx.closed = true
	if len(tx.ops) == 0 {
		return nil
	}
	n := &notification{
		update: &Update{Ops: tx.ops},
		origin: tx.origin,
		local:  tx.local,
	}
	for _, c := range tx.order {
		ch := tx.changes[c]
		ev := containerEvent{c: c, origin: tx.origin, local: tx.local}
		switch c.kind {
		case KindArray, KindText:
			ev.seq = c.seq.delta(ch)
			if len(ev.seq) == 0 {
				continue
			}
		case KindMap:
			ev.keys = c.m.keyChanges(ch)
			if len(ev.keys) == 0 {
				continue
			}
		}
		n.events = append(n.events, ev)
	}
	return n
}

// localInsert builds and integrates insert ops for values at visible index.
func (tx *Txn) localInsert(c *container, index int, values []json.RawMessage) error {
	if index < 0 || index > c.seq.length() {
		return fmt.Errorf("%w: insert at %d in %q (len %d)", ErrIndexOutOfRange, index, c.name, c.seq.length())
	}
	var origin *ID
	if left := c.seq.visible(index - 1); left != nil {
		id := left.id
		origin = &id
	}
	for _, v := range values {
		op := Op{Kind: OpInsert, Container: c.name, Type: c.kind, ID: tx.nextID(1), Origin: origin, Value: v}
		tx.integrate(c, op)
		id := op.ID
		origin = &id
	}
	return nil
}

// localInsertText inserts s at visible rune index.
func (tx *Txn) localInsertText(c *container, index int, s string) error {
	if s == "" {
		return nil
	}
	if index < 0 || index > c.seq.length() {
		return fmt.Errorf("%w: insert at %d in %q (len %d)", ErrIndexOutOfRange, index, c.name, c.seq.length())
	}
	var origin *ID
	if left := c.seq.visible(index - 1); left != nil {
		id := left.id
		origin = &id
	}
	op := Op{Kind: OpInsert, Container: c.name, Type: c.kind, ID: tx.nextID(utf8.RuneCountInString(s)), Origin: origin, Text: s}
	tx.integrate(c, op)
	return nil
}

// localDelete tombstones length visible items starting at index.
func (tx *Txn) localDelete(c *container, index, length int) error {
	if length == 0 {
		return nil
	}
	n := c.seq.length()
	if index < 0 || length < 0 || index+length > n {
		return fmt.Errorf("%w: delete %d at %d in %q (len %d)", ErrIndexOutOfRange, length, index, c.name, n)
	}
	targets := make([]ID, 0, length)
	for i := 0; i < length; i++ {
		targets = append(targets, c.seq.visible(index+i).id)
	}
	for _, target := range targets {
		t := target
		tx.integrate(c, Op{Kind: OpDelete, Container: c.name, Type: c.kind, ID: tx.nextID(1), Target: &t})
	}
	return nil
}

// localSet writes (or removes, when value is nil) a map key.
func (tx *Txn) localSet(c *container, key string, value json.RawMessage) {
	kind := OpSet
	if value == nil {
		kind = OpRemove
	}
	tx.integrate(c, Op{Kind: kind, Container: c.name, Type: KindMap, ID: tx.nextID(1), Key: key, Value: value})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
