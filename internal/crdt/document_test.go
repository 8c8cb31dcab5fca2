// ABOUTME: Tests for the replicated document: transactions, rollback, events, and replication
// ABOUTME: Covers read-your-writes, atomic visibility, delta runs, LWW maps, and convergence

package crdt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func ids(notes []note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestSameNameSameContainer(t *testing.T) {
	doc := New()
	a := ArrayOf[note](doc, "notes")
	b := ArrayOf[note](doc, "notes")

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return a.In(tx).Push(note{ID: "n1"})
	}))

	assert.Equal(t, 1, b.Len())
}

func TestContainerKindMismatchPanics(t *testing.T) {
	doc := New()
	doc.Array("things")

	assert.Panics(t, func() { doc.Map("things") })
}

func TestTransact_ReadYourWrites(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")

	err := doc.Transact(func(tx *Txn) error {
		v := notes.In(tx)
		require.NoError(t, v.Push(note{ID: "n1"}, note{ID: "n2"}))
		assert.Equal(t, 2, v.Len())
		got, ok := v.Get(1)
		assert.True(t, ok)
		assert.Equal(t, "n2", got.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, ids(notes.ToArray()))
}

func TestTransact_ErrorRollsBackEverything(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")
	index := MapOf[string](doc, "index")

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Push(note{ID: "keep"})
	}))

	var events, updates int
	notes.Observe(func(TypedArrayEvent[note]) { events++ })
	doc.OnUpdate(func(*Update, any) { updates++ })

	boom := errors.New("boom")
	err := doc.Transact(func(tx *Txn) error {
		require.NoError(t, notes.In(tx).Push(note{ID: "drop"}))
		require.NoError(t, notes.In(tx).Delete(0, 1))
		require.NoError(t, index.In(tx).Set("k", "v"))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"keep"}, ids(notes.ToArray()))
	assert.False(t, index.Has("k"))
	assert.Zero(t, events)
	assert.Zero(t, updates)
	assert.Len(t, doc.EncodeStateAsUpdate().Ops, 1)
}

func TestTransact_PanicRollsBackAndRepanics(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")

	assert.Panics(t, func() {
		_ = doc.Transact(func(tx *Txn) error {
			_ = notes.In(tx).Push(note{ID: "n1"})
			panic("mid-frame")
		})
	})

	assert.Equal(t, 0, notes.Len())

	// the lock was released
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Push(note{ID: "n2"})
	}))
	assert.Equal(t, 1, notes.Len())
}

func TestTransact_ViewOutsideFramePanics(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")

	var leaked *Txn
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		leaked = tx
		return nil
	}))

	assert.Panics(t, func() { _ = notes.In(leaked).Push(note{ID: "late"}) })
}

func TestTransact_OneUpdatePerFrame(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")
	tags := ArrayOf[string](doc, "tags")

	var updates []*Update
	doc.OnUpdate(func(u *Update, origin any) {
		updates = append(updates, u)
		assert.Equal(t, "cli", origin)
	})

	require.NoError(t, doc.TransactWithOrigin("cli", func(tx *Txn) error {
		if err := notes.In(tx).Push(note{ID: "n1"}); err != nil {
			return err
		}
		return tags.In(tx).Push("urgent")
	}))

	require.Len(t, updates, 1)
	assert.Len(t, updates[0].Ops, 2)
}

func TestTransact_EmptyFrameIsSilent(t *testing.T) {
	doc := New()
	called := false
	doc.OnUpdate(func(*Update, any) { called = true })

	require.NoError(t, doc.Transact(func(tx *Txn) error { return nil }))
	assert.False(t, called)
}

func TestArrayObserve_ReplaceDelta(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Push(note{ID: "a"}, note{ID: "b"}, note{ID: "c"})
	}))

	var got []TypedDelta[note]
	notes.Observe(func(ev TypedArrayEvent[note]) {
		assert.True(t, ev.Local)
		got = ev.Delta
	})

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Replace(1, note{ID: "b", Body: "edited"})
	}))

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Retain)
	require.Len(t, got[1].Insert, 1)
	assert.Equal(t, "edited", got[1].Insert[0].Body)
	assert.Equal(t, 1, got[2].Delete)
	assert.Equal(t, []string{"a", "b", "c"}, ids(notes.ToArray()))
}

func TestArrayObserve_InsertedThenDeletedInSameFrameIsInvisible(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Push(note{ID: "a"})
	}))

	var deltas [][]TypedDelta[note]
	notes.Observe(func(ev TypedArrayEvent[note]) { deltas = append(deltas, ev.Delta) })

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		v := notes.In(tx)
		if err := v.Push(note{ID: "tmp"}); err != nil {
			return err
		}
		return v.Delete(1, 1)
	}))

	assert.Empty(t, deltas)
}

func TestArray_OutOfRange(t *testing.T) {
	doc := New()
	notes := ArrayOf[note](doc, "notes")

	err := doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Insert(3, note{ID: "x"})
	})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	err = doc.Transact(func(tx *Txn) error {
		return notes.In(tx).Delete(0, 1)
	})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestMap_LastWriterWinsAndEvents(t *testing.T) {
	doc := New()
	pages := MapOf[note](doc, "pages")

	var events []TypedMapEvent[note]
	pages.Observe(func(ev TypedMapEvent[note]) { events = append(events, ev) })

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return pages.In(tx).Set("home", note{ID: "p1", Body: "v1"})
	}))
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return pages.In(tx).Set("home", note{ID: "p1", Body: "v2"})
	}))
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		assert.True(t, pages.In(tx).Delete("home"))
		assert.False(t, pages.In(tx).Delete("missing"))
		return nil
	}))

	require.Len(t, events, 3)
	assert.Equal(t, ActionAdd, events[0].Keys["home"].Action)
	assert.Equal(t, ActionUpdate, events[1].Keys["home"].Action)
	assert.Equal(t, "v1", events[1].Keys["home"].Old.Body)
	assert.Equal(t, "v2", events[1].Keys["home"].New.Body)
	assert.Equal(t, ActionDelete, events[2].Keys["home"].Action)
	assert.False(t, pages.Has("home"))
}

func TestText_EditsAndDelta(t *testing.T) {
	doc := New()
	body := doc.Text("body")

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		return body.In(tx).Insert(0, "hello world")
	}))

	var delta []TextDelta
	body.Observe(func(ev TextEvent) { delta = ev.Delta })

	require.NoError(t, doc.Transact(func(tx *Txn) error {
		v := body.In(tx)
		if err := v.Delete(0, 5); err != nil {
			return err
		}
		return v.Insert(0, "goodbye")
	}))

	assert.Equal(t, "goodbye world", body.String())
	require.Len(t, delta, 2)
	assert.Equal(t, "goodbye", delta[0].Insert)
	assert.Equal(t, 5, delta[1].Delete)
}

func TestApplyUpdate_ConcurrentInsertsConverge(t *testing.T) {
	a := New(WithClientID(1))
	b := New(WithClientID(2))
	na := ArrayOf[string](a, "list")
	nb := ArrayOf[string](b, "list")

	var ua, ub *Update
	a.OnUpdate(func(u *Update, origin any) {
		if origin == nil {
			ua = u
		}
	})
	b.OnUpdate(func(u *Update, origin any) {
		if origin == nil {
			ub = u
		}
	})

	require.NoError(t, a.Transact(func(tx *Txn) error { return na.In(tx).Push("a1", "a2") }))
	require.NoError(t, b.Transact(func(tx *Txn) error { return nb.In(tx).Push("b1") }))

	require.NoError(t, a.ApplyUpdate(ub, "remote"))
	require.NoError(t, b.ApplyUpdate(ua, "remote"))

	assert.Equal(t, na.ToArray(), nb.ToArray())
	assert.Len(t, na.ToArray(), 3)
}

func TestApplyUpdate_ConcurrentDeleteAndInsert(t *testing.T) {
	a := New(WithClientID(1))
	list := ArrayOf[string](a, "list")
	require.NoError(t, a.Transact(func(tx *Txn) error { return list.In(tx).Push("x", "y", "z") }))

	b := New(WithClientID(2))
	require.NoError(t, b.ApplyUpdate(a.EncodeStateAsUpdate(), "sync"))
	listB := ArrayOf[string](b, "list")

	var ua, ub *Update
	a.OnUpdate(func(u *Update, origin any) {
		if origin == nil {
			ua = u
		}
	})
	b.OnUpdate(func(u *Update, origin any) {
		if origin == nil {
			ub = u
		}
	})

	require.NoError(t, a.Transact(func(tx *Txn) error { return list.In(tx).Delete(1, 1) }))
	require.NoError(t, b.Transact(func(tx *Txn) error { return listB.In(tx).Insert(2, "after-y") }))

	require.NoError(t, a.ApplyUpdate(ub, "remote"))
	require.NoError(t, b.ApplyUpdate(ua, "remote"))

	assert.Equal(t, []string{"x", "after-y", "z"}, list.ToArray())
	assert.Equal(t, list.ToArray(), listB.ToArray())
}

func TestApplyUpdate_IdempotentAndRemoteFlag(t *testing.T) {
	a := New()
	list := ArrayOf[string](a, "list")
	require.NoError(t, a.Transact(func(tx *Txn) error { return list.In(tx).Push("one") }))

	b := New()
	listB := ArrayOf[string](b, "list")
	var events []TypedArrayEvent[string]
	listB.Observe(func(ev TypedArrayEvent[string]) { events = append(events, ev) })

	state := a.EncodeStateAsUpdate()
	require.NoError(t, b.ApplyUpdate(state, "sync"))
	require.NoError(t, b.ApplyUpdate(state, "sync"))

	assert.Equal(t, []string{"one"}, listB.ToArray())
	require.Len(t, events, 1)
	assert.False(t, events[0].Local)
	assert.Equal(t, "sync", events[0].Origin)
}

func TestApplyUpdate_ParksOpsUntilDependenciesArrive(t *testing.T) {
	a := New()
	list := ArrayOf[string](a, "list")

	var updates []*Update
	a.OnUpdate(func(u *Update, origin any) { updates = append(updates, u) })
	require.NoError(t, a.Transact(func(tx *Txn) error { return list.In(tx).Push("first") }))
	require.NoError(t, a.Transact(func(tx *Txn) error { return list.In(tx).Push("second") }))
	require.Len(t, updates, 2)

	b := New()
	listB := ArrayOf[string](b, "list")
	require.NoError(t, b.ApplyUpdate(updates[1], nil))
	assert.Equal(t, 0, listB.Len())
	assert.Equal(t, 1, b.PendingOps())

	require.NoError(t, b.ApplyUpdate(updates[0], nil))
	assert.Equal(t, []string{"first", "second"}, listB.ToArray())
	assert.Equal(t, 0, b.PendingOps())
}

func TestApplyUpdate_RejectsMalformedOps(t *testing.T) {
	doc := New()
	doc.Array("list")

	bad := &Update{Ops: []Op{
		{Kind: OpSet, Container: "list", Type: KindMap, ID: ID{Client: 9, Clock: 1}, Key: "k", Value: json.RawMessage(`1`)},
		{Kind: OpDelete, Container: "other", Type: KindArray, ID: ID{Client: 9, Clock: 2}},
		{Kind: OpSet, Container: "good", Type: KindMap, ID: ID{Client: 9, Clock: 3}, Key: "k", Value: json.RawMessage(`"v"`)},
	}}

	err := doc.ApplyUpdate(bad, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.True(t, doc.Map("good").Has("k"))
}

func TestUpdateEncodeDecode(t *testing.T) {
	doc := New()
	list := ArrayOf[note](doc, "list")
	body := doc.Text("body")
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		if err := list.In(tx).Push(note{ID: "n1", Body: "héllo"}); err != nil {
			return err
		}
		return body.In(tx).Insert(0, "ünïcode")
	}))

	data, err := doc.EncodeStateAsUpdate().Encode()
	require.NoError(t, err)
	u, err := DecodeUpdate(data)
	require.NoError(t, err)

	replica := New()
	require.NoError(t, replica.ApplyUpdate(u, nil))
	assert.Equal(t, list.ToArray(), ArrayOf[note](replica, "list").ToArray())
	assert.Equal(t, "ünïcode", replica.Text("body").String())
}

func TestReadersNeverSeePartialFrames(t *testing.T) {
	doc := New()
	left := ArrayOf[int](doc, "left")
	right := ArrayOf[int](doc, "right")

	const frames = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			_ = doc.Transact(func(tx *Txn) error {
				if err := left.In(tx).Push(i); err != nil {
					return err
				}
				return right.In(tx).Push(i)
			})
		}
	}()

	// a reader holding the lock across both reads sees matching lengths
	for i := 0; i < frames; i++ {
		doc.mu.RLock()
		l, r := left.raw.c.seq.length(), right.raw.c.seq.length()
		doc.mu.RUnlock()
		assert.Equal(t, l, r)
	}
	wg.Wait()
	assert.Equal(t, frames, left.Len())
}

func TestObserverMayReadDuringDelivery(t *testing.T) {
	doc := New()
	list := ArrayOf[string](doc, "list")

	var seen []int
	list.Observe(func(TypedArrayEvent[string]) {
		seen = append(seen, list.Len())
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, doc.Transact(func(tx *Txn) error { return list.In(tx).Push("x") }))
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestClose(t *testing.T) {
	doc := New()
	list := ArrayOf[string](doc, "list")
	require.NoError(t, doc.Transact(func(tx *Txn) error { return list.In(tx).Push("x") }))

	doc.Close()

	err := doc.Transact(func(tx *Txn) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, list.Len())
}

func TestView_ReadOnlyConsistentFrame(t *testing.T) {
	doc := New()
	list := ArrayOf[string](doc, "list")
	index := MapOf[int](doc, "index")
	require.NoError(t, doc.Transact(func(tx *Txn) error {
		if err := list.In(tx).Push("a"); err != nil {
			return err
		}
		return index.In(tx).Set("a", 0)
	}))

	doc.View(func(tx *Txn) {
		assert.Equal(t, []string{"a"}, list.In(tx).ToArray())
		assert.Equal(t, []int{0}, index.In(tx).Values())
		assert.Panics(t, func() { _ = list.In(tx).Push("b") })
		assert.Panics(t, func() { _ = index.In(tx).Set("b", 1) })
	})
	assert.Equal(t, 1, list.Len())
}
