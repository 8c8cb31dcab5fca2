// ABOUTME: MentionWatcher enqueues invocations for bot mentions that arrive from remote peers
// ABOUTME: Each trigger message and bot pair is claimed once, and stale history is ignored

package agent

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/dedupe"
	"github.com/2389/hearth/internal/records"
	"github.com/2389/hearth/internal/workspace"
)

const (
	defaultMaxAge    = 5 * time.Minute
	defaultDedupeTTL = time.Hour
	dedupeMaxSize    = 10000
)

// WatcherOptions configures a MentionWatcher.
type WatcherOptions struct {
	MaxAge    time.Duration // messages older than this on arrival are not acted on
	DedupeTTL time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// MentionWatcher observes the messages array of a workspace and enqueues bot
// invocations for messages posted by other replicas. Local sends already enqueue
// their own mentions, so local frames are ignored.
type MentionWatcher struct {
	handle   *workspace.Handle
	messages *crdt.TypedArray[records.Message]
	seen     *dedupe.Cache
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	unsub func()
}

// NewMentionWatcher creates a watcher for handle. Call Start to begin observing.
func NewMentionWatcher(handle *workspace.Handle, opts WatcherOptions) *MentionWatcher {
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MentionWatcher{
		handle:   handle,
		messages: crdt.ArrayOf[records.Message](handle.Doc(), workspace.MessagesContainer),
		seen:     dedupe.New(opts.DedupeTTL, dedupeMaxSize),
		maxAge:   opts.MaxAge,
		now:      opts.Now,
		logger:   logger.With("component", "mention_watcher"),
	}
}

// Start begins observing. Calling it while started is a no-op.
func (m *MentionWatcher) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		return
	}
	m.unsub = m.messages.Observe(m.onMessages)
	m.logger.Debug("watching for remote mentions")
}

// Stop stops observing. Claims are kept, so a restarted watcher does not re-trigger.
func (m *MentionWatcher) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// Close stops observing and releases the claim set.
func (m *MentionWatcher) Close() {
	m.Stop()
	m.seen.Close()
}

func (m *MentionWatcher) onMessages(ev crdt.TypedArrayEvent[records.Message]) {
	if ev.Local {
		return
	}
	for _, d := range ev.Delta {
		for _, msg := range d.Insert {
			m.Consider(msg)
		}
	}
}

// Consider enqueues invocations for the mentions in msg that have not been acted on.
// It returns what was enqueued.
func (m *MentionWatcher) Consider(msg records.Message) []botqueue.Invocation {
	if msg.ID == "" || len(records.ParseMentions(msg.Content)) == 0 {
		return nil
	}
	if sent, err := records.ParseTime(msg.Timestamp); err == nil {
		if age := m.now().Sub(sent); age > m.maxAge {
			m.logger.Debug("ignoring mention in old message", "message_id", msg.ID, "age", age)
			return nil
		}
	}

	threadID := ""
	if t, ok := records.ThreadOfMessage(m.handle.Threads(), msg.ID); ok {
		threadID = t.ID
	}

	invs := m.handle.EnqueueMentionsFunc(msg, threadID, func(bot workspace.Bot) bool {
		return m.seen.Claim(msg.ID + ":" + strings.ToLower(bot.Name))
	})
	for _, inv := range invs {
		m.logger.Info("remote mention enqueued",
			"invocation_id", inv.ID,
			"bot", inv.Bot,
			"message_id", msg.ID)
	}
	return invs
}
