// ABOUTME: Bounded per-peer update queue with stale marking on overflow
// ABOUTME: A stale mailbox asks its consumer to follow up with a full-state update

package relay

import (
	"sync/atomic"

	"github.com/2389/hearth/internal/crdt"
)

const (
	// mailboxSize is the channel buffer for each peer.
	mailboxSize = 64
)

type mailbox struct {
	ch    chan *crdt.Update
	stale atomic.Bool
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan *crdt.Update, mailboxSize)}
}

// offer enqueues u without blocking. It reports false and marks the mailbox
// stale when the buffer is full.
func (m *mailbox) offer(u *crdt.Update) bool {
	select {
	case m.ch <- u:
		return true
	default:
		m.stale.Store(true)
		return false
	}
}

// takeStale reports whether updates were dropped since the last call.
func (m *mailbox) takeStale() bool {
	return m.stale.Swap(false)
}
