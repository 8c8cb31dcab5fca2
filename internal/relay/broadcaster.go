// ABOUTME: In-memory fan-out of committed document updates to connected peers
// ABOUTME: Publishes each room update to every peer of the document except its origin

package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/hearth/internal/crdt"
)

// broadcaster provides in-memory pub/sub of updates keyed by document name.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*mailbox // document -> peerID -> mailbox
	logger      *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &broadcaster{
		subscribers: make(map[string]map[string]*mailbox),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a peer for updates on document. The subscription is
// removed when ctx is cancelled.
func (b *broadcaster) Subscribe(ctx context.Context, document string) (*mailbox, string) {
	peerID := uuid.New().String()
	mb := newMailbox()

	b.mu.Lock()
	if _, ok := b.subscribers[document]; !ok {
		b.subscribers[document] = make(map[string]*mailbox)
	}
	b.subscribers[document][peerID] = mb
	b.mu.Unlock()

	b.logger.Debug("peer subscribed", "document", document, "peer_id", peerID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(document, peerID)
	}()

	return mb, peerID
}

// Publish offers u to every peer of document except excludeID. Offers run
// under the read lock; mailboxes are only closed under the write lock.
func (b *broadcaster) Publish(document string, u *crdt.Update, excludeID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, mb := range b.subscribers[document] {
		if id == excludeID {
			continue
		}
		if !mb.offer(u) {
			b.logger.Debug("peer lagging, full resync scheduled", "document", document, "peer_id", id)
		}
	}
}

// Unsubscribe removes a peer and closes its mailbox.
func (b *broadcaster) Unsubscribe(document, peerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[document]
	if !ok {
		return
	}
	mb, ok := subs[peerID]
	if !ok {
		return
	}

	delete(subs, peerID)
	close(mb.ch)
	if len(subs) == 0 {
		delete(b.subscribers, document)
	}

	b.logger.Debug("peer unsubscribed", "document", document, "peer_id", peerID)
}

// Count returns the number of peers subscribed to document.
func (b *broadcaster) Count(document string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[document])
}

// Close closes every mailbox.
func (b *broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for document, subs := range b.subscribers {
		for id, mb := range subs {
			close(mb.ch)
			delete(subs, id)
		}
		delete(b.subscribers, document)
	}
	b.logger.Debug("broadcaster closed")
}
