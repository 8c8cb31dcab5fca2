// ABOUTME: Tests for the websocket sync transport
// ABOUTME: Runs a hub behind httptest and dials it with real websocket peers

package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/store"
)

func setupServer(t *testing.T, h *Hub) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /sync/{doc}", NewServer(h, DefaultSettings(), nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/sync/"
}

func dial(t *testing.T, url string, doc *crdt.Doc) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s, err := Dial(ctx, url, doc)
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s
}

func TestWebsocket_RemotePeersConverge(t *testing.T) {
	h := setupHub(t, store.NewMemoryStore())
	base := setupServer(t, h)

	a, b := crdt.New(), crdt.New()
	dial(t, base+"general", a)
	dial(t, base+"general", b)

	push(t, a, "from a")
	push(t, b, "from b")

	require.Eventually(t, hasItems(a, 2), waitFor, tick)
	require.Eventually(t, hasItems(b, 2), waitFor, tick)
	assert.Equal(t, a.Array("items").ToArray(), b.Array("items").ToArray())
}

func TestWebsocket_MixedTransports(t *testing.T) {
	h := setupHub(t, store.NewMemoryStore())
	base := setupServer(t, h)

	local := crdt.New()
	connect(t, h, "general", local)
	push(t, local, "local")

	remote := crdt.New()
	dial(t, base+"general", remote)
	// room state arrives before Dial returns
	assert.Equal(t, 1, remote.Array("items").Len())

	push(t, remote, "remote")
	require.Eventually(t, hasItems(local, 2), waitFor, tick)
	require.Eventually(t, func() bool { return h.Peers("general") == 2 }, waitFor, tick)
}

func TestWebsocket_OfflineEditsMergeOnDial(t *testing.T) {
	h := setupHub(t, store.NewMemoryStore())
	base := setupServer(t, h)

	local := crdt.New()
	connect(t, h, "general", local)

	offline := crdt.New()
	push(t, offline, "written offline")
	dial(t, base+"general", offline)

	require.Eventually(t, hasItems(local, 1), waitFor, tick)
}

func TestWebsocket_DisconnectDetaches(t *testing.T) {
	h := setupHub(t, store.NewMemoryStore())
	base := setupServer(t, h)

	local := crdt.New()
	connect(t, h, "general", local)

	remote := crdt.New()
	s, err := Dial(context.Background(), base+"general", remote)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Peers("general") == 2 }, waitFor, tick)

	s.Disconnect()
	require.Eventually(t, func() bool { return h.Peers("general") == 1 }, waitFor, tick)

	push(t, remote, "not synced")
	push(t, local, "local")
	assert.Equal(t, 1, local.Array("items").Len())
}

func TestWebsocket_HubCloseEndsSession(t *testing.T) {
	h := NewHub(store.NewMemoryStore())
	base := setupServer(t, h)

	s, err := Dial(context.Background(), base+"general", crdt.New())
	require.NoError(t, err)

	require.NoError(t, h.Close())
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session still running after hub close")
	}
	s.Disconnect()
}

func TestWebsocket_InvalidDocument(t *testing.T) {
	h := setupHub(t, store.NewMemoryStore())
	base := setupServer(t, h)

	_, err := Dial(context.Background(), base+"a%2Fb", crdt.New())
	assert.Error(t, err)
}

func TestWebsocket_DisconnectFlushesPendingEdits(t *testing.T) {
	h := setupHub(t, store.NewMemoryStore())
	base := setupServer(t, h)

	watcher := crdt.New()
	connect(t, h, "general", watcher)

	remote := crdt.New()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s, err := Dial(ctx, base+"general", remote)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		push(t, remote, i)
	}
	s.Disconnect()

	require.Eventually(t, hasItems(watcher, 20), waitFor, tick)
}
