// ABOUTME: Observer records typed workspace events and fans them out to subscribers
// ABOUTME: WaitForEvent gives tests and the CLI an event-driven wait with a hard timeout

package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/workspace"
)

// ErrTimeout is returned by WaitForEvent when no matching event arrives in time.
var ErrTimeout = errors.New("timed out waiting for event")

// EventType names a workspace change.
type EventType string

const (
	MessageAdded   EventType = "message_added"
	MessageDeleted EventType = "message_deleted"
	ThreadAdded    EventType = "thread_added"
	ThreadDeleted  EventType = "thread_deleted"
	TagAdded       EventType = "tag_added"
	TagDeleted     EventType = "tag_deleted"
	PageAdded      EventType = "page_added"
	PageUpdated    EventType = "page_updated"
	PageDeleted    EventType = "page_deleted"
)

// EventTypes lists every event type in a stable order.
var EventTypes = []EventType{
	MessageAdded, MessageDeleted,
	ThreadAdded, ThreadDeleted,
	TagAdded, TagDeleted,
	PageAdded, PageUpdated, PageDeleted,
}

// Event is one entry of the event log.
type Event struct {
	Seq   int64           `json:"seq"`
	Type  EventType       `json:"type"`
	Index int             `json:"index"`         // array position; -1 for page events
	Key   string          `json:"key,omitempty"` // page path
	Item  json.RawMessage `json:"item,omitempty"`
	Local bool            `json:"local"`
	At    time.Time       `json:"at"`
}

type arraySource struct {
	container string
	added     EventType
	deleted   EventType
}

var arraySources = []arraySource{
	{workspace.MessagesContainer, MessageAdded, MessageDeleted},
	{workspace.ThreadsContainer, ThreadAdded, ThreadDeleted},
	{workspace.TagsContainer, TagAdded, TagDeleted},
}

type listener struct {
	id string
	fn func(Event)
}

// Observer is the event log for one document.
type Observer struct {
	doc    *crdt.Doc
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	events []Event
	seq    int64
	unsubs []func()

	lmu       sync.Mutex
	listeners []listener
}

// New creates an observer for doc. Pass nil logger for default.
func New(doc *crdt.Doc, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		doc:    doc,
		logger: logger.With("component", "observer"),
		now:    time.Now,
	}
}

// Start subscribes to the workspace containers. Calling Start twice is a no-op.
func (o *Observer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unsubs != nil {
		return
	}

	for _, src := range arraySources {
		unsub := o.doc.Array(src.container).Observe(func(ev crdt.ArrayEvent) {
			for _, ch := range ReduceDelta(ev.Delta) {
				typ := src.added
				if ch.Kind == Deleted {
					typ = src.deleted
				}
				o.record(Event{Type: typ, Index: ch.Index, Item: ch.Item, Local: ev.Local})
			}
		})
		o.unsubs = append(o.unsubs, unsub)
	}

	unsub := o.doc.Map(workspace.PagesContainer).Observe(func(ev crdt.MapEvent) {
		for _, key := range sortedKeys(ev.Keys) {
			kc := ev.Keys[key]
			e := Event{Index: -1, Key: key, Item: kc.NewValue, Local: ev.Local}
			switch kc.Action {
			case crdt.ActionAdd:
				e.Type = PageAdded
			case crdt.ActionUpdate:
				e.Type = PageUpdated
			case crdt.ActionDelete:
				e.Type = PageDeleted
			default:
				continue
			}
			o.record(e)
		}
	})
	o.unsubs = append(o.unsubs, unsub)
	o.logger.Debug("observer started")
}

// Stop unsubscribes from the document. The event log is kept.
func (o *Observer) Stop() {
	o.mu.Lock()
	unsubs := o.unsubs
	o.unsubs = nil
	o.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

func (o *Observer) record(e Event) {
	o.mu.Lock()
	o.seq++
	e.Seq = o.seq
	e.At = o.now()
	o.events = append(o.events, e)
	o.mu.Unlock()

	o.logger.Debug("event", "type", e.Type, "index", e.Index, "key", e.Key, "local", e.Local)

	o.lmu.Lock()
	ls := slices.Clone(o.listeners)
	o.lmu.Unlock()
	for _, l := range ls {
		l.fn(e)
	}
}

// Events returns a copy of the log.
func (o *Observer) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.events)
}

// EventsOfType returns the logged events of typ.
func (o *Observer) EventsOfType(typ EventType) []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Event
	for _, e := range o.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the log. Sequence numbers keep increasing.
func (o *Observer) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = nil
}

// Subscribe registers fn for every future event. The returned function unsubscribes.
func (o *Observer) Subscribe(fn func(Event)) func() {
	id := uuid.New().String()
	o.lmu.Lock()
	o.listeners = append(o.listeners, listener{id: id, fn: fn})
	o.lmu.Unlock()

	return func() {
		o.lmu.Lock()
		defer o.lmu.Unlock()
		o.listeners = slices.DeleteFunc(o.listeners, func(l listener) bool { return l.id == id })
	}
}

// WaitForEvent returns the next event of typ recorded after the call. It fails with
// ErrTimeout after timeout, or with the context error if ctx ends first.
func (o *Observer) WaitForEvent(ctx context.Context, typ EventType, timeout time.Duration) (Event, error) {
	ch := make(chan Event, 1)
	unsubscribe := o.Subscribe(func(e Event) {
		if e.Type != typ {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e := <-ch:
		return e, nil
	case <-timer.C:
		return Event{}, fmt.Errorf("%w: %s after %s", ErrTimeout, typ, timeout)
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (o *Observer) listenerCount() int {
	o.lmu.Lock()
	defer o.lmu.Unlock()
	return len(o.listeners)
}

func sortedKeys(m map[string]crdt.KeyChange) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
