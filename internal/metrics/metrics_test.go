// ABOUTME: Tests for the Prometheus collectors
// ABOUTME: Scrapes the handler and checks queue, transaction and relay series

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/relay"
)

var (
	_ botqueue.Recorder = (*Metrics)(nil)
	_ relay.Metrics     = (*Metrics)(nil)
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_QueueRecorder(t *testing.T) {
	m := New()
	q := botqueue.New(botqueue.WithMetrics(m))

	id := q.Enqueue(botqueue.EnqueueParams{Bot: "ai", Prompt: "hi", TriggerMessageID: "m1"})
	require.True(t, q.StartProcessing(id, "t1"))
	require.True(t, q.Complete(id))

	out := scrape(t, m)
	assert.Contains(t, out, `hearth_invocation_transitions_total{status="pending"} 1`)
	assert.Contains(t, out, `hearth_invocation_transitions_total{status="processing"} 1`)
	assert.Contains(t, out, `hearth_invocation_transitions_total{status="completed"} 1`)
	assert.Contains(t, out, `hearth_invocations{status="completed"} 1`)
	assert.Contains(t, out, `hearth_invocations{status="pending"} 0`)
}

func TestMetrics_Transactions(t *testing.T) {
	m := New()
	doc := crdt.New()
	stop := m.ObserveDocument(doc)

	for i := 0; i < 3; i++ {
		require.NoError(t, doc.Transact(func(tx *crdt.Txn) error {
			return doc.Array("items").In(tx).Push(i)
		}))
	}
	stop()
	require.NoError(t, doc.Transact(func(tx *crdt.Txn) error {
		return doc.Array("items").In(tx).Push("unobserved")
	}))

	assert.Contains(t, scrape(t, m), "hearth_transactions_total 3")
}

func TestMetrics_Relay(t *testing.T) {
	m := New()
	m.SetPeers("general", 2)
	m.UpdatePersisted("general")
	m.UpdatePersisted("general")

	out := scrape(t, m)
	assert.Contains(t, out, `hearth_relay_peers{document="general"} 2`)
	assert.Contains(t, out, `hearth_updates_persisted_total{document="general"} 2`)
	assert.Contains(t, out, "go_goroutines")
}
