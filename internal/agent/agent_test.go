// ABOUTME: Tests for the invocation worker, responder registry and echo responder
// ABOUTME: Covers claim, thread allocation, failure paths and the running worker loop

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/workspace"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newHandle(t *testing.T) *workspace.Handle {
	t.Helper()
	h := workspace.New(crdt.New(), workspace.Options{
		Queue: botqueue.New(),
		Bots:  []workspace.Bot{{Name: "ai", DisplayName: "AI"}},
	})
	t.Cleanup(h.Close)
	return h
}

func newWorker(t *testing.T, h *workspace.Handle, r Responder) *Worker {
	t.Helper()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("ai", r))
	w, err := NewWorker(h, reg, Options{})
	require.NoError(t, err)
	return w
}

func mention(t *testing.T, h *workspace.Handle, content string, opts workspace.SendOptions) botqueue.Invocation {
	t.Helper()
	res, err := h.SendMessage("alice", content, opts)
	require.NoError(t, err)
	require.Len(t, res.BotInvocations, 1)
	return res.BotInvocations[0]
}

func TestWorker_RepliesInNewThread(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, EchoResponder{})
	inv := mention(t, h, "@ai hello there", workspace.SendOptions{})

	require.True(t, w.Process(context.Background(), inv.ID))

	got, ok := h.Queue().Get(inv.ID)
	require.True(t, ok)
	assert.Equal(t, botqueue.StatusCompleted, got.Status)
	require.NotEmpty(t, got.CreatedThreadID)

	th := h.GetThreadWithMessages(got.CreatedThreadID)
	require.NotNil(t, th)
	assert.Equal(t, inv.TriggerMessageID, th.Thread.ParentMessageID)
	require.Len(t, th.Messages, 1)
	assert.Equal(t, "AI", th.Messages[0].Username)
	assert.Equal(t, "echo: hello there [1 context messages]", th.Messages[0].Content)

	parent, _ := h.GetMessage(inv.TriggerMessageID)
	assert.Equal(t, []string{got.CreatedThreadID}, parent.ThreadIDs)
}

func TestWorker_RepliesInExistingThread(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, EchoResponder{})

	root, err := h.SendMessage("bob", "root", workspace.SendOptions{})
	require.NoError(t, err)
	th, err := h.CreateThreadForMessage(root.Message.ID)
	require.NoError(t, err)

	inv := mention(t, h, "@ai in thread", workspace.SendOptions{ThreadID: th.ID})
	require.True(t, w.Process(context.Background(), inv.ID))

	got, _ := h.Queue().Get(inv.ID)
	assert.Equal(t, botqueue.StatusCompleted, got.Status)
	assert.Empty(t, got.CreatedThreadID)
	assert.Len(t, h.Threads(), 1)

	members := h.GetThreadWithMessages(th.ID)
	require.NotNil(t, members)
	require.Len(t, members.Messages, 2)
	assert.Equal(t, "AI", members.Messages[1].Username)
}

func TestWorker_ReplyDoesNotTriggerBots(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, ResponderFunc(func(context.Context, *botqueue.Invocation) (string, error) {
		return "@ai ping yourself", nil
	}))
	inv := mention(t, h, "@ai go", workspace.SendOptions{})

	require.True(t, w.Process(context.Background(), inv.ID))
	assert.Equal(t, 1, h.Queue().Len())
}

func TestWorker_ResponderErrorFails(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, ResponderFunc(func(context.Context, *botqueue.Invocation) (string, error) {
		return "", errors.New("model unavailable")
	}))
	inv := mention(t, h, "@ai hi", workspace.SendOptions{})

	require.True(t, w.Process(context.Background(), inv.ID))

	got, _ := h.Queue().Get(inv.ID)
	assert.Equal(t, botqueue.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "model unavailable")
	// the thread was allocated before the responder ran
	_, ok := h.GetThread(got.CreatedThreadID)
	assert.True(t, ok)
}

func TestWorker_MissingTriggerFails(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, EchoResponder{})
	id := h.Queue().Enqueue(botqueue.EnqueueParams{Bot: "ai", Prompt: "x", TriggerMessageID: "gone"})

	require.True(t, w.Process(context.Background(), id))

	got, _ := h.Queue().Get(id)
	assert.Equal(t, botqueue.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "not found")
	assert.Empty(t, h.Threads())
}

func TestWorker_NoResponderFails(t *testing.T) {
	h := newHandle(t)
	w, err := NewWorker(h, NewRegistry(nil), Options{})
	require.NoError(t, err)
	inv := mention(t, h, "@ai anyone?", workspace.SendOptions{})

	require.True(t, w.Process(context.Background(), inv.ID))
	got, _ := h.Queue().Get(inv.ID)
	assert.Equal(t, botqueue.StatusFailed, got.Status)
	assert.Contains(t, got.Error, ErrNoResponder.Error())
}

func TestWorker_SkipsClaimed(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, EchoResponder{})
	inv := mention(t, h, "@ai hi", workspace.SendOptions{})

	require.True(t, h.Queue().StartProcessing(inv.ID, "t-other"))
	assert.False(t, w.Process(context.Background(), inv.ID))
	assert.False(t, w.Process(context.Background(), "unknown"))
}

func TestWorker_ReclaimReusesThread(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, EchoResponder{})
	inv := mention(t, h, "@ai again", workspace.SendOptions{})

	require.True(t, h.Queue().StartProcessing(inv.ID, "t-first"))
	require.True(t, h.Queue().Reclaim(inv.ID))
	require.True(t, w.Process(context.Background(), inv.ID))

	got, _ := h.Queue().Get(inv.ID)
	assert.Equal(t, botqueue.StatusCompleted, got.Status)
	assert.Equal(t, "t-first", got.CreatedThreadID)
	_, ok := h.GetThread("t-first")
	assert.True(t, ok)
}

func TestWorker_RunProcessesQueue(t *testing.T) {
	h := newHandle(t)
	w := newWorker(t, h, EchoResponder{})

	early := mention(t, h, "@ai before start", workspace.SendOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	late := mention(t, h, "@ai after start", workspace.SendOptions{})

	for _, id := range []string{early.ID, late.ID} {
		assert.Eventually(t, func() bool {
			got, _ := h.Queue().Get(id)
			return got.Status == botqueue.StatusCompleted
		}, waitFor, tick)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("worker did not stop")
	}
}

func TestNewWorker_RequiresQueue(t *testing.T) {
	h := workspace.New(crdt.New(), workspace.Options{})
	_, err := NewWorker(h, NewRegistry(nil), Options{})
	assert.ErrorIs(t, err, ErrNoQueue)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	echo := EchoResponder{}

	require.NoError(t, reg.Register("AI", echo))
	assert.ErrorIs(t, reg.Register("ai", echo), ErrResponderExists)

	r, err := reg.Lookup("Ai")
	require.NoError(t, err)
	assert.Equal(t, echo, r)

	_, err = reg.Lookup("other")
	assert.ErrorIs(t, err, ErrNoResponder)

	fallback := EchoResponder{Prefix: "fallback: "}
	reg.SetFallback(fallback)
	r, err = reg.Lookup("other")
	require.NoError(t, err)
	assert.Equal(t, fallback, r)

	assert.Equal(t, []string{"ai"}, reg.Bots())
	reg.Unregister("AI")
	assert.Empty(t, reg.Bots())
}

func TestEchoResponder(t *testing.T) {
	ctx := context.Background()

	out, err := EchoResponder{}.Respond(ctx, &botqueue.Invocation{Prompt: "  hi  "})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi [0 context messages]", out)

	out, err = EchoResponder{Prefix: "> "}.Respond(ctx, &botqueue.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, "> (nothing to echo) [0 context messages]", out)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = EchoResponder{}.Respond(cancelled, &botqueue.Invocation{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
