// ABOUTME: Tests for MentionWatcher against a pair of replicating documents
// ABOUTME: Covers remote triggers, local frames, duplicate delivery and stale history

package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
	"github.com/2389/hearth/internal/workspace"
)

// linkedPair returns a human replica without a queue and a bot replica with one,
// replicating both ways.
func linkedPair(t *testing.T) (human, bot *workspace.Handle) {
	t.Helper()
	docA, docB := crdt.New(), crdt.New()
	human = workspace.New(docA, workspace.Options{})
	bot = workspace.New(docB, workspace.Options{
		Queue: botqueue.New(),
		Bots:  []workspace.Bot{{Name: "ai", DisplayName: "AI"}},
	})
	docA.OnUpdate(func(u *crdt.Update, origin any) {
		if origin == nil {
			require.NoError(t, docB.ApplyUpdate(u, "human"))
		}
	})
	docB.OnUpdate(func(u *crdt.Update, origin any) {
		if origin == nil {
			require.NoError(t, docA.ApplyUpdate(u, "bot"))
		}
	})
	return human, bot
}

func startWatcher(t *testing.T, h *workspace.Handle, opts WatcherOptions) *MentionWatcher {
	t.Helper()
	w := NewMentionWatcher(h, opts)
	w.Start()
	t.Cleanup(w.Close)
	return w
}

func TestMentionWatcher_EnqueuesRemoteMention(t *testing.T) {
	human, bot := linkedPair(t)
	startWatcher(t, bot, WatcherOptions{})

	res, err := human.SendMessage("alice", "@ai what is new", workspace.SendOptions{})
	require.NoError(t, err)

	pending := bot.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "ai", pending[0].Bot)
	assert.Equal(t, "what is new", pending[0].Prompt)
	assert.Equal(t, res.Message.ID, pending[0].TriggerMessageID)
}

func TestMentionWatcher_CarriesThread(t *testing.T) {
	human, bot := linkedPair(t)
	startWatcher(t, bot, WatcherOptions{})

	root, err := human.SendMessage("alice", "root", workspace.SendOptions{})
	require.NoError(t, err)
	th, err := human.CreateThreadForMessage(root.Message.ID)
	require.NoError(t, err)

	_, err = human.SendMessage("alice", "@ai follow up", workspace.SendOptions{ThreadID: th.ID})
	require.NoError(t, err)

	pending := bot.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, th.ID, pending[0].ExistingThreadID)
}

func TestMentionWatcher_IgnoresLocalFrames(t *testing.T) {
	_, bot := linkedPair(t)
	startWatcher(t, bot, WatcherOptions{})

	res, err := bot.SendMessage("carol", "@ai local", workspace.SendOptions{})
	require.NoError(t, err)
	assert.Len(t, res.BotInvocations, 1)
	assert.Equal(t, 1, bot.Queue().Len())
}

func TestMentionWatcher_ActsOncePerMessage(t *testing.T) {
	human, bot := linkedPair(t)
	startWatcher(t, bot, WatcherOptions{})

	res, err := human.SendMessage("alice", "@ai once", workspace.SendOptions{})
	require.NoError(t, err)
	// replacing the message re-inserts it on the bot replica
	_, result, err := human.UpdateMessage(res.Message.ID, records.MessageUpdate{Tags: []string{"x"}})
	require.NoError(t, err)
	require.Equal(t, records.Applied, result)

	assert.Equal(t, 1, bot.Queue().Len())
}

func TestMentionWatcher_IgnoresOldMessages(t *testing.T) {
	human, bot := linkedPair(t)
	later := func() time.Time { return time.Now().Add(time.Hour) }
	startWatcher(t, bot, WatcherOptions{MaxAge: time.Minute, Now: later})

	_, err := human.SendMessage("alice", "@ai too late", workspace.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, bot.Queue().Len())
}

func TestMentionWatcher_Stop(t *testing.T) {
	human, bot := linkedPair(t)
	w := startWatcher(t, bot, WatcherOptions{})
	w.Stop()

	_, err := human.SendMessage("alice", "@ai anyone", workspace.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, bot.Queue().Len())
}
