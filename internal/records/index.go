// ABOUTME: Derived thread and message views, recomputed on every call
// ABOUTME: Linear scans over materialized slices; documents stay in the thousands of records

package records

import "slices"

// FindMessage returns the message with id.
func FindMessage(messages []Message, id string) (Message, bool) {
	i := IndexOfMessage(messages, id)
	if i < 0 {
		return Message{}, false
	}
	return messages[i], true
}

// FindThread returns the thread with id.
func FindThread(threads []Thread, id string) (Thread, bool) {
	i := IndexOfThread(threads, id)
	if i < 0 {
		return Thread{}, false
	}
	return threads[i], true
}

// ThreadsForMessage returns every thread rooted at messageID, in creation order.
func ThreadsForMessage(threads []Thread, messageID string) []Thread {
	var out []Thread
	for _, t := range threads {
		if t.ParentMessageID == messageID {
			out = append(out, t)
		}
	}
	return out
}

// MessagesForThread resolves the thread's message ids in thread order. Ids that no
// longer resolve are skipped. It returns nil when the thread does not exist.
func MessagesForThread(threads []Thread, messages []Message, threadID string) []Message {
	t, ok := FindThread(threads, threadID)
	if !ok {
		return nil
	}
	byID := indexMessages(messages)
	out := make([]Message, 0, len(t.MessageIDs))
	for _, id := range t.MessageIDs {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// DanglingMessageIDs returns the ids in t that do not resolve to a message.
func DanglingMessageIDs(t Thread, messages []Message) []string {
	byID := indexMessages(messages)
	var out []string
	for _, id := range t.MessageIDs {
		if _, ok := byID[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// ChannelMessages returns the messages that belong to no thread.
func ChannelMessages(messages []Message, threads []Thread) []Message {
	inThread := make(map[string]bool)
	for _, t := range threads {
		for _, id := range t.MessageIDs {
			inThread[id] = true
		}
	}
	return slices.DeleteFunc(slices.Clone(messages), func(m Message) bool { return inThread[m.ID] })
}

func indexMessages(messages []Message) map[string]Message {
	byID := make(map[string]Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}
	return byID
}

// ThreadOfMessage returns the thread that lists messageID as a member.
func ThreadOfMessage(threads []Thread, messageID string) (Thread, bool) {
	for _, t := range threads {
		if slices.Contains(t.MessageIDs, messageID) {
			return t, true
		}
	}
	return Thread{}, false
}
