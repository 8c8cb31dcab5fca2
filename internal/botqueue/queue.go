// ABOUTME: Bot invocation queue with status transitions and a single-claim processing guard
// ABOUTME: Invocations carry explicit timestamps; Cleanup ages terminal and stuck entries by them

package botqueue

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hearth/internal/records"
)

// Status is the lifecycle state of an invocation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Invocation is one unit of requested bot work.
type Invocation struct {
	ID               string            `json:"id"`
	Bot              string            `json:"bot"`
	Prompt           string            `json:"prompt"`
	TriggerMessageID string            `json:"trigger_message_id"`
	ExistingThreadID string            `json:"existing_thread_id,omitempty"`
	CreatedThreadID  string            `json:"created_thread_id,omitempty"`
	Status           Status            `json:"status"`
	Error            string            `json:"error,omitempty"`
	ContextMessages  []records.Message `json:"context_messages"`
	CreatedAt        time.Time         `json:"created_at"`
	StartedAt        time.Time         `json:"started_at,omitzero"`
	FinishedAt       time.Time         `json:"finished_at,omitzero"`
}

// ReplyThreadID is the thread a reply belongs in: the thread the trigger was posted in,
// or the one allocated when processing started.
func (inv Invocation) ReplyThreadID() string {
	if inv.ExistingThreadID != "" {
		return inv.ExistingThreadID
	}
	return inv.CreatedThreadID
}

func (inv *Invocation) clone() Invocation {
	out := *inv
	out.ContextMessages = slices.Clone(inv.ContextMessages)
	return out
}

// EnqueueParams describes a new invocation.
type EnqueueParams struct {
	Bot              string
	Prompt           string
	TriggerMessageID string
	ExistingThreadID string
	ContextMessages  []records.Message
}

// EventType names a queue mutation.
type EventType string

const (
	EventEnqueued  EventType = "enqueued"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventReclaimed EventType = "reclaimed"
	EventRemoved   EventType = "removed"
)

// Event is delivered to subscribers for every mutation.
type Event struct {
	Type       EventType
	Invocation Invocation
}

// Recorder receives queue statistics. A nil Recorder is ignored.
type Recorder interface {
	RecordTransition(status string)
	SetStatusCounts(counts map[string]int)
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics reports transitions and per-status counts to r.
func WithMetrics(r Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

type listener struct {
	id string
	fn func(Event)
}

// Queue is the invocation ledger. The zero value is not usable; call New.
type Queue struct {
	mu         sync.Mutex
	items      map[string]*Invocation
	order      []string
	processing map[string]struct{}

	lmu       sync.Mutex
	listeners []listener

	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		items:      make(map[string]*Invocation),
		processing: make(map[string]struct{}),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "botqueue")
	return q
}

// Enqueue records a pending invocation and returns its id. It always succeeds.
func (q *Queue) Enqueue(p EnqueueParams) string {
	q.mu.Lock()
	inv := &Invocation{
		ID:               records.NewID(),
		Bot:              p.Bot,
		Prompt:           p.Prompt,
		TriggerMessageID: p.TriggerMessageID,
		ExistingThreadID: p.ExistingThreadID,
		Status:           StatusPending,
		ContextMessages:  slices.Clone(p.ContextMessages),
		CreatedAt:        q.now(),
	}
	if inv.ContextMessages == nil {
		inv.ContextMessages = []records.Message{}
	}
	q.items[inv.ID] = inv
	q.order = append(q.order, inv.ID)
	ev := Event{Type: EventEnqueued, Invocation: inv.clone()}
	counts := q.countsLocked()
	q.mu.Unlock()

	q.logger.Info("invocation enqueued",
		"invocation_id", inv.ID,
		"bot", p.Bot,
		"trigger_message_id", p.TriggerMessageID)
	q.publish(StatusPending, counts, ev)
	return ev.Invocation.ID
}

// StartProcessing claims a pending invocation and fixes its reply thread id. It returns
// false when the id is unknown, not pending, or already claimed.
func (q *Queue) StartProcessing(id, createdThreadID string) bool {
	q.mu.Lock()
	inv, ok := q.items[id]
	if !ok || inv.Status != StatusPending {
		q.mu.Unlock()
		return false
	}
	if _, busy := q.processing[id]; busy {
		q.mu.Unlock()
		return false
	}
	q.processing[id] = struct{}{}
	inv.Status = StatusProcessing
	inv.CreatedThreadID = createdThreadID
	inv.StartedAt = q.now()
	ev := Event{Type: EventStarted, Invocation: inv.clone()}
	counts := q.countsLocked()
	q.mu.Unlock()

	q.logger.Debug("invocation started", "invocation_id", id, "thread_id", createdThreadID)
	q.publish(StatusProcessing, counts, ev)
	return true
}

// Complete marks an invocation completed and releases its claim. It returns false for
// unknown or already-terminal ids.
func (q *Queue) Complete(id string) bool {
	return q.finish(id, StatusCompleted, "")
}

// Fail marks an invocation failed with reason and releases its claim. It returns false
// for unknown or already-terminal ids.
func (q *Queue) Fail(id, reason string) bool {
	return q.finish(id, StatusFailed, reason)
}

func (q *Queue) finish(id string, status Status, reason string) bool {
	q.mu.Lock()
	inv, ok := q.items[id]
	if !ok || inv.Status.Terminal() {
		q.mu.Unlock()
		return false
	}
	delete(q.processing, id)
	inv.Status = status
	inv.Error = reason
	inv.FinishedAt = q.now()
	typ := EventCompleted
	if status == StatusFailed {
		typ = EventFailed
	}
	ev := Event{Type: typ, Invocation: inv.clone()}
	counts := q.countsLocked()
	q.mu.Unlock()

	if status == StatusFailed {
		q.logger.Warn("invocation failed", "invocation_id", id, "bot", ev.Invocation.Bot, "error", reason)
	} else {
		q.logger.Info("invocation completed", "invocation_id", id, "bot", ev.Invocation.Bot)
	}
	q.publish(status, counts, ev)
	return true
}

// Reclaim returns a processing invocation to pending so it can be claimed again. The
// reply thread id is kept so a second attempt posts into the same thread.
func (q *Queue) Reclaim(id string) bool {
	q.mu.Lock()
	inv, ok := q.items[id]
	if !ok || inv.Status != StatusProcessing {
		q.mu.Unlock()
		return false
	}
	delete(q.processing, id)
	inv.Status = StatusPending
	inv.StartedAt = time.Time{}
	ev := Event{Type: EventReclaimed, Invocation: inv.clone()}
	counts := q.countsLocked()
	q.mu.Unlock()

	q.logger.Warn("invocation reclaimed", "invocation_id", id, "bot", ev.Invocation.Bot)
	q.publish(StatusPending, counts, ev)
	return true
}

// Cleanup removes terminal invocations that finished more than maxAge ago and
// processing invocations that started more than maxAge ago. It returns the number
// removed.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	q.mu.Lock()
	now := q.now()
	var removed []Invocation
	kept := q.order[:0]
	for _, id := range q.order {
		inv := q.items[id]
		var age time.Duration
		switch {
		case inv.Status.Terminal():
			age = now.Sub(inv.FinishedAt)
		case inv.Status == StatusProcessing:
			age = now.Sub(inv.StartedAt)
		}
		if age > maxAge {
			if inv.Status == StatusProcessing {
				q.logger.Warn("dropping stuck invocation", "invocation_id", id, "started_at", inv.StartedAt)
			}
			delete(q.items, id)
			delete(q.processing, id)
			removed = append(removed, inv.clone())
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	counts := q.countsLocked()
	q.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	q.logger.Debug("cleanup removed invocations", "count", len(removed), "max_age", maxAge)
	if q.recorder != nil {
		q.recorder.SetStatusCounts(counts)
	}
	for _, inv := range removed {
		q.notify(Event{Type: EventRemoved, Invocation: inv})
	}
	return len(removed)
}

// Get returns a copy of the invocation with id.
func (q *Queue) Get(id string) (Invocation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	inv, ok := q.items[id]
	if !ok {
		return Invocation{}, false
	}
	return inv.clone(), true
}

// List returns invocations in enqueue order, optionally limited to statuses.
func (q *Queue) List(statuses ...Status) []Invocation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Invocation, 0, len(q.order))
	for _, id := range q.order {
		inv := q.items[id]
		if len(statuses) == 0 || slices.Contains(statuses, inv.Status) {
			out = append(out, inv.clone())
		}
	}
	return out
}

// Pending returns the invocations waiting to be claimed.
func (q *Queue) Pending() []Invocation {
	return q.List(StatusPending)
}

// Len returns the number of invocations held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Subscribe registers fn for every mutation. The returned function unsubscribes.
func (q *Queue) Subscribe(fn func(Event)) func() {
	id := uuid.New().String()
	q.lmu.Lock()
	q.listeners = append(q.listeners, listener{id: id, fn: fn})
	q.lmu.Unlock()

	return func() {
		q.lmu.Lock()
		defer q.lmu.Unlock()
		q.listeners = slices.DeleteFunc(q.listeners, func(l listener) bool { return l.id == id })
	}
}

// countsLocked tallies invocations by status. Must be called with mu held.
func (q *Queue) countsLocked() map[string]int {
	if q.recorder == nil {
		return nil
	}
	counts := map[string]int{
		string(StatusPending):    0,
		string(StatusProcessing): 0,
		string(StatusCompleted):  0,
		string(StatusFailed):     0,
	}
	for _, inv := range q.items {
		counts[string(inv.Status)]++
	}
	return counts
}

func (q *Queue) publish(status Status, counts map[string]int, ev Event) {
	if q.recorder != nil {
		q.recorder.RecordTransition(string(status))
		q.recorder.SetStatusCounts(counts)
	}
	q.notify(ev)
}

func (q *Queue) notify(ev Event) {
	q.lmu.Lock()
	ls := slices.Clone(q.listeners)
	q.lmu.Unlock()
	for _, l := range ls {
		l.fn(ev)
	}
}
