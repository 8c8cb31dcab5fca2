// ABOUTME: Hub owns one authoritative replica per document and connects peers to it
// ABOUTME: Loads rooms from the store, persists every committed update, fans updates out

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/store"
)

var (
	// ErrClosed is returned when joining a closed hub.
	ErrClosed = errors.New("relay closed")

	// ErrInvalidDocument is returned for empty names or names containing '/'.
	ErrInvalidDocument = errors.New("invalid document name")
)

// Metrics receives relay gauges and counters.
type Metrics interface {
	SetPeers(document string, n int)
	UpdatePersisted(document string)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics reports peer counts and persisted updates to m.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub connects peers to per-document rooms.
type Hub struct {
	store   store.Store
	bcast   *broadcaster
	metrics Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

type room struct {
	name   string
	doc    *crdt.Doc
	unsub  func()
	saveMu sync.Mutex // serializes appends with compaction
}

// NewHub creates a hub persisting to st.
func NewHub(st store.Store, opts ...Option) *Hub {
	h := &Hub{
		store:  st,
		logger: slog.Default(),
		rooms:  make(map[string]*room),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "relay")
	h.bcast = newBroadcaster(h.logger)
	return h
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidDocument, name)
	}
	return nil
}

// room returns the named room, loading it from the store on first use.
func (h *Hub) room(ctx context.Context, name string) (*room, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if r, ok := h.rooms[name]; ok {
		return r, nil
	}

	recs, err := h.store.LoadUpdates(ctx, name, 0)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", name, err)
	}

	r := &room{name: name, doc: crdt.New(crdt.WithLogger(h.logger))}
	for _, rec := range recs {
		u, err := crdt.DecodeUpdate(rec.Payload)
		if err != nil {
			h.logger.Warn("skipping undecodable update", "document", name, "seq", rec.Seq, "error", err)
			continue
		}
		if err := r.doc.ApplyUpdate(u, nil); err != nil {
			h.logger.Warn("update applied with errors", "document", name, "seq", rec.Seq, "error", err)
		}
	}
	if n := r.doc.PendingOps(); n > 0 {
		h.logger.Warn("document loaded with unresolved ops", "document", name, "pending", n)
	}

	r.unsub = r.doc.OnUpdate(func(u *crdt.Update, origin any) {
		h.persist(r, u)
		peerID, _ := origin.(string)
		h.bcast.Publish(name, u, peerID)
	})
	h.rooms[name] = r

	h.logger.Info("document loaded", "document", name, "records", len(recs))
	return r, nil
}

func (h *Hub) persist(r *room, u *crdt.Update) {
	data, err := u.Encode()
	if err != nil {
		h.logger.Error("encoding update for persistence", "document", r.name, "error", err)
		return
	}

	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if _, err := h.store.AppendUpdate(context.Background(), r.name, data); err != nil {
		h.logger.Error("persisting update", "document", r.name, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.UpdatePersisted(r.name)
	}
}

func (h *Hub) peersChanged(name string) {
	if h.metrics != nil {
		h.metrics.SetPeers(name, h.bcast.Count(name))
	}
}

// Connect joins doc to the named room in-process. ctx bounds the join; the
// session lasts until Disconnect or until the hub closes.
func (h *Hub) Connect(ctx context.Context, name string, doc *crdt.Doc) (*Session, error) {
	r, err := h.room(ctx, name)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	mb, peerID := h.bcast.Subscribe(sctx, name)
	h.peersChanged(name)

	s := newSession(doc, name, peerID)
	s.stop = cancel

	if err := doc.ApplyUpdate(r.doc.EncodeStateAsUpdate(), s); err != nil {
		h.logger.Warn("applying room state to peer", "document", name, "peer_id", peerID, "error", err)
	}
	unsubLocal := doc.OnUpdate(func(u *crdt.Update, origin any) {
		if origin == s {
			return
		}
		if err := r.doc.ApplyUpdate(u, peerID); err != nil {
			h.logger.Warn("applying peer update", "document", name, "peer_id", peerID, "error", err)
		}
	})
	if err := r.doc.ApplyUpdate(doc.EncodeStateAsUpdate(), peerID); err != nil {
		h.logger.Warn("applying peer state to room", "document", name, "peer_id", peerID, "error", err)
	}

	go func() {
		defer close(s.done)
		defer h.peersChanged(name)
		defer unsubLocal()

		for u := range mb.ch {
			s.apply(h.logger, u)
			if mb.takeStale() {
				s.apply(h.logger, r.doc.EncodeStateAsUpdate())
			}
		}
	}()

	h.logger.Info("peer connected", "document", name, "peer_id", peerID, "transport", "local")
	return s, nil
}

// Compact replaces the stored log of name with one snapshot of the room state.
func (h *Hub) Compact(ctx context.Context, name string) error {
	r, err := h.room(ctx, name)
	if err != nil {
		return err
	}

	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	data, err := r.doc.EncodeStateAsUpdate().Encode()
	if err != nil {
		return err
	}
	if _, err := h.store.Compact(ctx, name, data); err != nil {
		return fmt.Errorf("compacting %s: %w", name, err)
	}
	return nil
}

// Documents returns the names of loaded rooms in sorted order.
func (h *Hub) Documents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Peers returns the number of peers connected to name.
func (h *Hub) Peers(name string) int {
	return h.bcast.Count(name)
}

// Close disconnects every peer and closes every room. Stored logs are kept.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	h.bcast.Close()
	for _, r := range rooms {
		r.unsub()
		r.doc.Close()
	}
	h.logger.Info("relay closed", "documents", len(rooms))
	return nil
}
