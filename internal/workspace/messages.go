// ABOUTME: Document-backed message operations: send, edit, read, query
// ABOUTME: Mentions are parsed after the send transaction commits and enqueued as bot invocations

package workspace

import (
	"github.com/2389/hearth/internal/botqueue"
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
)

// SendOptions are the optional parts of SendMessage.
type SendOptions struct {
	ThreadID   string   // post as a reply in this thread
	Tags       []string // initial tags
	NoMentions bool     // do not enqueue bot invocations for this message
}

// SendResult is what SendMessage produced.
type SendResult struct {
	Message        records.Message       `json:"message"`
	BotInvocations []botqueue.Invocation `json:"bot_invocations"`
}

// SendMessage appends a message and, when opts.ThreadID names an existing thread, adds
// it to that thread in the same transaction. A missing thread is logged and the message
// is still posted. Bot mentions are enqueued after the commit.
func (h *Handle) SendMessage(username, content string, opts SendOptions) (*SendResult, error) {
	msg := records.CreateMessage(username, content, records.MessageOptions{Tags: opts.Tags})
	if msg.Content == "" {
		return nil, ErrEmptyMessage
	}

	err := h.transact(func(tx *crdt.Txn) error {
		if err := h.messages.In(tx).Push(msg); err != nil {
			return err
		}
		if opts.ThreadID != "" {
			threads := h.threads.In(tx)
			ch, res := records.AppendMessageToThread(threads.ToArray(), opts.ThreadID, msg.ID)
			switch res {
			case records.Applied:
				if err := threads.Replace(ch.Index, ch.Item()); err != nil {
					return err
				}
			case records.NotFound:
				h.logger.Warn("reply to unknown thread posted to channel",
					"message_id", msg.ID,
					"thread_id", opts.ThreadID)
			}
		}
		for _, tag := range msg.Tags {
			if err := h.ensureGlobalTag(tx, tag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug("message sent", "message_id", msg.ID, "username", username, "thread_id", opts.ThreadID)

	result := &SendResult{Message: msg, BotInvocations: []botqueue.Invocation{}}
	if !opts.NoMentions {
		result.BotInvocations = h.EnqueueMentions(msg, opts.ThreadID)
	}
	return result, nil
}

// EnqueueMentions enqueues one invocation per configured bot mentioned in msg. threadID
// is the thread msg was posted in, if any. It returns the invocations as enqueued.
func (h *Handle) EnqueueMentions(msg records.Message, threadID string) []botqueue.Invocation {
	return h.EnqueueMentionsFunc(msg, threadID, nil)
}

// EnqueueMentionsFunc is EnqueueMentions limited to the bots keep accepts. A nil keep
// accepts every configured bot.
func (h *Handle) EnqueueMentionsFunc(msg records.Message, threadID string, keep func(Bot) bool) []botqueue.Invocation {
	out := []botqueue.Invocation{}
	if h.queue == nil || h.IsBotUser(msg.Username) {
		return out
	}
	mentions := records.ParseMentions(msg.Content)
	if len(mentions) == 0 {
		return out
	}

	convo, inThread := h.contextFor(threadID)
	if !inThread {
		threadID = ""
	}
	for _, m := range mentions {
		bot, ok := h.Bot(m.Name)
		if !ok || (keep != nil && !keep(bot)) {
			continue
		}
		id := h.queue.Enqueue(botqueue.EnqueueParams{
			Bot:              bot.Name,
			Prompt:           m.Prompt,
			TriggerMessageID: msg.ID,
			ExistingThreadID: threadID,
			ContextMessages:  convo,
		})
		inv, ok := h.queue.Get(id)
		if !ok {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// contextFor returns the recent conversation a bot should see: the parent and members
// of threadID, or the channel messages when threadID does not name a thread.
func (h *Handle) contextFor(threadID string) (msgs []records.Message, inThread bool) {
	h.doc.View(func(tx *crdt.Txn) {
		messages := h.messages.In(tx).ToArray()
		threads := h.threads.In(tx).ToArray()
		if t, ok := records.FindThread(threads, threadID); ok {
			if parent, ok := records.FindMessage(messages, t.ParentMessageID); ok {
				msgs = append(msgs, parent)
			}
			msgs = append(msgs, records.MessagesForThread(threads, messages, threadID)...)
			inThread = true
			return
		}
		msgs = records.ChannelMessages(messages, threads)
	})
	if len(msgs) > h.contextMessages {
		msgs = msgs[len(msgs)-h.contextMessages:]
	}
	return msgs, inThread
}

// UpdateMessage applies a shallow patch to the message with id.
func (h *Handle) UpdateMessage(id string, upd records.MessageUpdate) (records.Message, records.Result, error) {
	var (
		updated records.Message
		res     records.Result
	)
	err := h.transact(func(tx *crdt.Txn) error {
		messages := h.messages.In(tx)
		var ch *records.Change[records.Message]
		ch, res = records.UpdateMessage(messages.ToArray(), id, upd)
		if res != records.Applied {
			return nil
		}
		updated = ch.Item()
		if err := messages.Replace(ch.Index, updated); err != nil {
			return err
		}
		for _, tag := range updated.Tags {
			if err := h.ensureGlobalTag(tx, tag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return records.Message{}, records.NotFound, err
	}
	return updated, res, nil
}

// GetMessage returns the message with id.
func (h *Handle) GetMessage(id string) (records.Message, bool) {
	return records.FindMessage(h.messages.ToArray(), id)
}

// Messages returns every message in document order.
func (h *Handle) Messages() []records.Message {
	return nonNil(h.messages.ToArray())
}

// QueryMessages returns the messages matching q.
func (h *Handle) QueryMessages(q records.MessageQuery) []records.Message {
	var out []records.Message
	h.doc.View(func(tx *crdt.Txn) {
		out = records.FilterMessages(h.messages.In(tx).ToArray(), h.threads.In(tx).ToArray(), q)
	})
	return out
}
