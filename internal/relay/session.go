// ABOUTME: Session is a connected replica: the document plus its disconnect teardown
// ABOUTME: Shared by in-process and websocket peers

package relay

import (
	"log/slog"
	"sync"

	"github.com/2389/hearth/internal/crdt"
)

// Session is one replica connected to a room.
type Session struct {
	// Doc is the connected replica. It stays usable after Disconnect.
	Doc *crdt.Doc

	Document string
	PeerID   string

	stop     func()
	stopOnce sync.Once
	done     chan struct{}
}

func newSession(doc *crdt.Doc, document, peerID string) *Session {
	return &Session{
		Doc:      doc,
		Document: document,
		PeerID:   peerID,
		done:     make(chan struct{}),
	}
}

// apply integrates u received from the room, tagged so it is not echoed back.
func (s *Session) apply(logger *slog.Logger, u *crdt.Update) {
	if err := s.Doc.ApplyUpdate(u, s); err != nil {
		logger.Warn("applying room update", "document", s.Document, "peer_id", s.PeerID, "error", err)
	}
}

// Disconnect stops syncing and waits for the session to wind down.
func (s *Session) Disconnect() {
	s.stopOnce.Do(s.stop)
	<-s.done
}

// Done is closed when the session has stopped syncing.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
