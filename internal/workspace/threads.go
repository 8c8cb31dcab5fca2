// ABOUTME: Document-backed thread operations and thread index reads
// ABOUTME: A thread and the parent message's link to it are written in the same transaction

package workspace

import (
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
)

// ThreadWithMessages is a thread with its members resolved.
type ThreadWithMessages struct {
	Thread   records.Thread    `json:"thread"`
	Messages []records.Message `json:"messages"`
}

// CreateThreadForMessage opens a new thread on messageID. It returns nil when the
// message does not exist. A message may root any number of threads.
func (h *Handle) CreateThreadForMessage(messageID string) (*records.Thread, error) {
	return h.createThread(records.NewID(), messageID)
}

// CreateThreadWithID opens a thread with a caller-allocated id. If a thread with id
// already exists it is returned unchanged. It returns nil when the parent message does
// not exist.
func (h *Handle) CreateThreadWithID(id, parentMessageID string) (*records.Thread, error) {
	return h.createThread(id, parentMessageID)
}

func (h *Handle) createThread(id, parentMessageID string) (*records.Thread, error) {
	var created *records.Thread
	err := h.transact(func(tx *crdt.Txn) error {
		threads := h.threads.In(tx)
		if existing, ok := records.FindThread(threads.ToArray(), id); ok {
			created = &existing
			return nil
		}

		messages := h.messages.In(tx)
		ch, res := records.AppendThreadID(messages.ToArray(), parentMessageID, id)
		if res == records.NotFound {
			return nil
		}
		t := records.CreateThreadWithID(id, parentMessageID)
		if err := threads.Push(t); err != nil {
			return err
		}
		if res == records.Applied {
			if err := messages.Replace(ch.Index, ch.Item()); err != nil {
				return err
			}
		}
		created = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		h.logger.Debug("thread parent not found", "message_id", parentMessageID)
		return nil, nil
	}
	return created, nil
}

// GetThread returns the thread with id.
func (h *Handle) GetThread(id string) (records.Thread, bool) {
	return records.FindThread(h.threads.ToArray(), id)
}

// Threads returns every thread in creation order.
func (h *Handle) Threads() []records.Thread {
	return nonNil(h.threads.ToArray())
}

// GetThreadsForMessage returns every thread rooted at messageID.
func (h *Handle) GetThreadsForMessage(messageID string) []records.Thread {
	return nonNil(records.ThreadsForMessage(h.threads.ToArray(), messageID))
}

// GetThreadWithMessages returns the thread and its resolvable members, or nil when the
// thread does not exist. Members that no longer resolve are logged and skipped.
func (h *Handle) GetThreadWithMessages(threadID string) *ThreadWithMessages {
	var (
		out      *ThreadWithMessages
		dangling []string
	)
	h.doc.View(func(tx *crdt.Txn) {
		threads := h.threads.In(tx).ToArray()
		t, ok := records.FindThread(threads, threadID)
		if !ok {
			return
		}
		messages := h.messages.In(tx).ToArray()
		out = &ThreadWithMessages{
			Thread:   t,
			Messages: records.MessagesForThread(threads, messages, threadID),
		}
		dangling = records.DanglingMessageIDs(t, messages)
	})
	if len(dangling) > 0 {
		h.logger.Warn("thread lists messages that do not exist",
			"thread_id", threadID,
			"message_ids", dangling)
	}
	return out
}
