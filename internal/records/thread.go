// ABOUTME: Pure thread operations: creation and message membership
// ABOUTME: Creating a thread never links it to its parent; the caller does that in the same transaction

package records

import "slices"

// CreateThread returns a new, empty thread rooted at parentMessageID.
func CreateThread(parentMessageID string) Thread {
	return CreateThreadWithID(NewID(), parentMessageID)
}

// CreateThreadWithID is CreateThread with a caller-allocated id, used when the id must
// exist before the thread does.
func CreateThreadWithID(id, parentMessageID string) Thread {
	return Thread{ID: id, ParentMessageID: parentMessageID, MessageIDs: []string{}}
}

// IndexOfThread returns the position of id in threads, or -1.
func IndexOfThread(threads []Thread, id string) int {
	return slices.IndexFunc(threads, func(t Thread) bool { return t.ID == id })
}

// AppendMessageToThread adds messageID to the thread's message list.
func AppendMessageToThread(threads []Thread, threadID, messageID string) (*Change[Thread], Result) {
	i := IndexOfThread(threads, threadID)
	if i < 0 {
		return nil, NotFound
	}
	if slices.Contains(threads[i].MessageIDs, messageID) {
		return nil, Unchanged
	}
	t := threads[i].Clone()
	t.MessageIDs = append(t.MessageIDs, messageID)
	return replaceAt(threads, i, t), Applied
}
