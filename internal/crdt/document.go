// ABOUTME: Doc is the replicated document: named containers, Lamport clock, op log
// ABOUTME: Provides Transact, ApplyUpdate, OnUpdate and full-state encoding

package crdt

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrTypeMismatch is returned when a name is already bound to a container of another kind.
	ErrTypeMismatch = errors.New("container type mismatch")

	// ErrIndexOutOfRange is returned by positional sequence operations.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrClosed is returned when transacting on a closed document.
	ErrClosed = errors.New("document is closed")
)

// container is the shared state behind Array, Map and Text handles.
type container struct {
	name string
	kind Kind
	seq  *sequence
	m    *mapState

	obsMu     sync.Mutex
	observers []observer
}

type observer struct {
	id uint64
	fn func(containerEvent)
}

type updateHandler struct {
	id uint64
	fn func(*Update, any)
}

// Option configures a Doc.
type Option func(*Doc)

// WithClientID fixes the replica id. Two replicas must never share one.
func WithClientID(id uint64) Option {
	return func(d *Doc) { d.clientID = id }
}

// WithLogger sets the logger used for decode failures and dropped ops.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Doc) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Doc is one replica of a shared document.
type Doc struct {
	mu sync.RWMutex // document state

	notifyMu   sync.Mutex // guards issued/delivered
	notifyCond *sync.Cond
	issued     uint64 // tickets handed out under mu
	delivered  uint64 // tickets whose notifications finished

	cmu        sync.Mutex
	containers map[string]*container

	clientID uint64
	clock    uint64
	log      []Op
	seen     map[ID]struct{}
	pending  []Op
	closed   bool

	hmu      sync.Mutex
	handlers []updateHandler
	nextSub  uint64

	logger *slog.Logger
}

// New creates an empty document with a random client id.
func New(opts ...Option) *Doc {
	d := &Doc{
		containers: make(map[string]*container),
		seen:       make(map[ID]struct{}),
		clientID:   randomClientID(),
		logger:     slog.Default(),
	}
	d.notifyCond = sync.NewCond(&d.notifyMu)
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "crdt", "client_id", d.clientID)
	return d
}

func randomClientID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crdt: reading random client id: %v", err))
	}
	// keep ids in the float-safe range so they survive JSON round trips through other runtimes
	return binary.BigEndian.Uint64(b[:]) >> 11
}

// ClientID returns the replica id.
func (d *Doc) ClientID() uint64 {
	return d.clientID
}

// container returns the named container, creating it with kind if absent.
func (d *Doc) container(name string, kind Kind) (*container, error) {
	d.cmu.Lock()
	defer d.cmu.Unlock()

	if c, ok := d.containers[name]; ok {
		if c.kind != kind {
			return nil, fmt.Errorf("%w: %q is a %s, not a %s", ErrTypeMismatch, name, c.kind, kind)
		}
		return c, nil
	}
	c := &container{name: name, kind: kind}
	switch kind {
	case KindArray, KindText:
		c.seq = newSequence()
	case KindMap:
		c.m = newMapState()
	default:
		return nil, fmt.Errorf("unknown container kind %q", kind)
	}
	d.containers[name] = c
	return c, nil
}

func (d *Doc) mustContainer(name string, kind Kind) *container {
	c, err := d.container(name, kind)
	if err != nil {
		panic("crdt: " + err.Error())
	}
	return c
}

// Array returns the named array container. It panics if name is bound to another kind.
func (d *Doc) Array(name string) *Array {
	return &Array{doc: d, c: d.mustContainer(name, KindArray)}
}

// Map returns the named map container. It panics if name is bound to another kind.
func (d *Doc) Map(name string) *Map {
	return &Map{doc: d, c: d.mustContainer(name, KindMap)}
}

// Text returns the named text container. It panics if name is bound to another kind.
func (d *Doc) Text(name string) *Text {
	return &Text{doc: d, c: d.mustContainer(name, KindText)}
}

// Transact runs fn as one atomic frame.
func (d *Doc) Transact(fn func(tx *Txn) error) error {
	return d.TransactWithOrigin(nil, fn)
}

// TransactWithOrigin runs fn as one atomic frame tagged with origin. Observers and
// update handlers receive origin so a sync channel can skip its own echoes.
func (d *Doc) TransactWithOrigin(origin any, fn func(tx *Txn) error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}

	tx := newTxn(d, origin, true)
	if err := d.run(tx, fn); err != nil {
		tx.rollback()
		tx.closed = true
		d.mu.Unlock()
		return err
	}

	n := tx.finish()
	d.commit(n)
	return nil
}

// View runs fn in a read-only frame. Every read made through views bound to tx sees
// the same state; writes panic.
func (d *Doc) View(fn func(tx *Txn)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tx := &Txn{doc: d, readOnly: true}
	defer func() { tx.closed = true }()
	fn(tx)
}

// run calls fn, undoing the frame and releasing the lock before re-panicking.
func (d *Doc) run(tx *Txn, fn func(tx *Txn) error) error {
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			tx.closed = true
			d.mu.Unlock()
			panic(r)
		}
	}()
	return fn(tx)
}

// commit releases the write lock and delivers n. Must be called with mu held.
// Frames are delivered in commit order; delivery itself runs without mu so observers
// can read the document.
func (d *Doc) commit(n *notification) {
	if n == nil {
		d.mu.Unlock()
		return
	}
	ticket := d.issued
	d.issued++
	d.mu.Unlock()

	d.notifyMu.Lock()
	for d.delivered != ticket {
		d.notifyCond.Wait()
	}
	d.notifyMu.Unlock()

	defer func() {
		d.notifyMu.Lock()
		d.delivered++
		d.notifyCond.Broadcast()
		d.notifyMu.Unlock()
	}()

	for _, ev := range n.events {
		ev.c.obsMu.Lock()
		obs := make([]observer, len(ev.c.observers))
		copy(obs, ev.c.observers)
		ev.c.obsMu.Unlock()
		for _, o := range obs {
			o.fn(ev)
		}
	}

	d.hmu.Lock()
	handlers := make([]updateHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.hmu.Unlock()
	for _, h := range handlers {
		h.fn(n.update, n.origin)
	}
}

// ApplyUpdate integrates ops from another replica. Ops already seen are skipped; ops
// whose origin or target is missing are parked until it arrives. Malformed ops are
// dropped and reported in the returned error after the valid ones are applied.
func (d *Doc) ApplyUpdate(u *Update, origin any) error {
	if u.Empty() {
		return nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}

	tx := newTxn(d, origin, false)
	var errs []error
	queue := append(d.pending, u.Ops...)
	d.pending = nil

	for progress := true; progress && len(queue) > 0; {
		progress = false
		var parked []Op
		for _, op := range queue {
			if _, ok := d.seen[op.ID]; ok {
				continue
			}
			if err := op.validate(); err != nil {
				errs = append(errs, err)
				continue
			}
			c, err := d.container(op.Container, op.Type)
			if err != nil {
				errs = append(errs, fmt.Errorf("op %s: %w", op.ID, err))
				continue
			}
			if !tx.ready(c, op) {
				parked = append(parked, op)
				continue
			}
			tx.integrate(c, op)
			progress = true
		}
		queue = parked
	}
	d.pending = dedupeOps(queue)
	if len(d.pending) > 0 {
		d.logger.Debug("parked ops awaiting dependencies", "count", len(d.pending))
	}

	n := tx.finish()
	d.commit(n)
	return errors.Join(errs...)
}

func dedupeOps(ops []Op) []Op {
	if len(ops) == 0 {
		return nil
	}
	seen := make(map[ID]bool, len(ops))
	out := ops[:0]
	for _, op := range ops {
		if !seen[op.ID] {
			seen[op.ID] = true
			out = append(out, op)
		}
	}
	return out
}

// EncodeStateAsUpdate returns every integrated op, in integration order.
func (d *Doc) EncodeStateAsUpdate() *Update {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ops := make([]Op, len(d.log))
	copy(ops, d.log)
	return &Update{Ops: ops}
}

// PendingOps returns the number of ops waiting for missing dependencies.
func (d *Doc) PendingOps() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pending)
}

// OnUpdate registers fn for every committed frame, local or remote.
// The returned function unsubscribes.
func (d *Doc) OnUpdate(fn func(u *Update, origin any)) func() {
	d.hmu.Lock()
	d.nextSub++
	id := d.nextSub
	d.handlers = append(d.handlers, updateHandler{id: id, fn: fn})
	d.hmu.Unlock()

	return func() {
		d.hmu.Lock()
		defer d.hmu.Unlock()
		for i, h := range d.handlers {
			if h.id == id {
				d.handlers = append(d.handlers[:i], d.handlers[i+1:]...)
				return
			}
		}
	}
}

// observe registers fn on c. The returned function unsubscribes.
func (d *Doc) observe(c *container, fn func(containerEvent)) func() {
	d.hmu.Lock()
	d.nextSub++
	id := d.nextSub
	d.hmu.Unlock()

	c.obsMu.Lock()
	c.observers = append(c.observers, observer{id: id, fn: fn})
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Close drops every observer and handler and rejects further transactions.
// Reads keep working on the final state.
func (d *Doc) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.hmu.Lock()
	d.handlers = nil
	d.hmu.Unlock()

	d.cmu.Lock()
	defer d.cmu.Unlock()
	for _, c := range d.containers {
		c.obsMu.Lock()
		c.observers = nil
		c.obsMu.Unlock()
	}
}
