// ABOUTME: Websocket transport for the relay: server-side peer handler and client Dial
// ABOUTME: Frames are binary crdt.Update JSON; an empty frame is a keepalive

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/hearth/internal/crdt"
)

// Settings tunes websocket timeouts.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
}

// DefaultSettings returns the timeouts used by Dial and NewServer.
func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     20 * time.Second,
	}
}

// Server upgrades /sync/{doc} requests to websocket peers of a Hub.
type Server struct {
	hub      *Hub
	settings Settings
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a websocket handler for hub.
func NewServer(hub *Hub, settings Settings, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:      hub,
		settings: settings,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: settings.HandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "relay-ws"),
	}
}

func documentName(r *http.Request) string {
	if name := r.PathValue("doc"); name != "" {
		return name
	}
	return strings.TrimPrefix(r.URL.Path, "/sync/")
}

// ServeHTTP handles one peer connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := documentName(r)
	if err := validateName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rm, err := s.hub.room(r.Context(), name)
	if err != nil {
		s.logger.Error("opening room", "document", name, "error", err)
		http.Error(w, "document unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "document", name, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb, peerID := s.hub.bcast.Subscribe(ctx, name)
	s.hub.peersChanged(name)
	defer func() {
		s.hub.bcast.Unsubscribe(name, peerID)
		s.hub.peersChanged(name)
	}()

	logger := s.logger.With("document", name, "peer_id", peerID)
	logger.Info("peer connected", "transport", "websocket", "remote_addr", r.RemoteAddr)

	if err := writeUpdate(conn, s.settings, rm.doc.EncodeStateAsUpdate()); err != nil {
		logger.Warn("sending room state", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		defer conn.Close()
		writeLoop(ctx, conn, s.settings, mb, rm.doc, nil, logger)
	}()

	readLoop(ctx, conn, s.settings, logger, func(u *crdt.Update) {
		if err := rm.doc.ApplyUpdate(u, peerID); err != nil {
			logger.Warn("applying peer update", "error", err)
		}
	})
	cancel()
	conn.Close()
	wg.Wait()
	logger.Info("peer disconnected")
}

// Dialer opens websocket sessions.
type Dialer struct {
	Settings Settings
	Logger   *slog.Logger
}

// Dial connects doc to the relay at url with default settings.
func Dial(ctx context.Context, url string, doc *crdt.Doc) (*Session, error) {
	d := &Dialer{Settings: DefaultSettings()}
	return d.Dial(ctx, url, doc)
}

// Dial connects doc to the relay at url. It returns once the room state has
// been applied to doc. ctx bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context, url string, doc *crdt.Doc) (*Session, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay-client", "url", url)

	dialer := websocket.Dialer{HandshakeTimeout: d.Settings.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay: %w", err)
	}

	success := false
	defer func() {
		if !success {
			conn.Close()
		}
	}()

	conn.SetReadDeadline(time.Now().Add(d.Settings.HandshakeTimeout))
	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading room state: %w", err)
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("reading room state: unexpected frame type %d", messageType)
	}
	state, err := crdt.DecodeUpdate(message)
	if err != nil {
		return nil, fmt.Errorf("reading room state: %w", err)
	}

	s := newSession(doc, url, "")
	s.apply(logger, state)

	out := newMailbox()
	unsub := doc.OnUpdate(func(u *crdt.Update, origin any) {
		if origin != s {
			out.offer(u)
		}
	})
	out.offer(doc.EncodeStateAsUpdate())

	sctx, cancel := context.WithCancel(context.Background())
	flush := make(chan chan struct{})
	s.stop = func() {
		// local edits still queued are written before the close frame
		ack := make(chan struct{})
		select {
		case flush <- ack:
			select {
			case <-ack:
			case <-time.After(d.Settings.WriteTimeout):
			}
		case <-sctx.Done():
		case <-time.After(d.Settings.WriteTimeout):
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(d.Settings.WriteTimeout))
		cancel()
		conn.Close()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		writeLoop(sctx, conn, d.Settings, out, doc, flush, logger)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		readLoop(sctx, conn, d.Settings, logger, func(u *crdt.Update) { s.apply(logger, u) })
	}()
	go func() {
		<-sctx.Done()
		conn.Close()
		wg.Wait()
		unsub()
		close(s.done)
		logger.Info("disconnected from relay")
	}()

	success = true
	logger.Info("connected to relay")
	return s, nil
}

func writeUpdate(conn *websocket.Conn, settings Settings, u *crdt.Update) error {
	data, err := u.Encode()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// writeLoop sends mailbox updates and keepalives until ctx ends, the mailbox
// closes or a write fails. A stale mailbox is followed by the full state of src.
// A request on flush writes everything queued and is then acknowledged by closing it.
func writeLoop(ctx context.Context, conn *websocket.Conn, settings Settings, mb *mailbox, src *crdt.Doc, flush <-chan chan struct{}, logger *slog.Logger) {
	ping := time.NewTicker(settings.PingInterval)
	defer ping.Stop()

	send := func(u *crdt.Update) bool {
		if err := writeUpdate(conn, settings, u); err != nil {
			logger.Debug("write failed", "error", err)
			return false
		}
		if mb.takeStale() {
			if err := writeUpdate(conn, settings, src.EncodeStateAsUpdate()); err != nil {
				logger.Debug("write failed", "error", err)
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-mb.ch:
			if !ok || !send(u) {
				return
			}
		case ack := <-flush:
			for drained := false; !drained; {
				select {
				case u, ok := <-mb.ch:
					if !ok || !send(u) {
						close(ack)
						return
					}
				default:
					drained = true
				}
			}
			close(ack)
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, nil); err != nil {
				logger.Debug("keepalive failed", "error", err)
				return
			}
		}
	}
}

// readLoop decodes frames and passes updates to apply until the connection fails.
func readLoop(ctx context.Context, conn *websocket.Conn, settings Settings, logger *slog.Logger, apply func(*crdt.Update)) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debug("read failed", "error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage || len(message) == 0 {
			continue
		}
		u, err := crdt.DecodeUpdate(message)
		if err != nil {
			logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		apply(u)
	}
}
