// ABOUTME: Pure message operations: creation, shallow-merge updates, tags and thread links
// ABOUTME: Each returns the next slice plus the changed index, or a Result explaining why nothing changed

package records

import (
	"slices"
	"strings"
)

// MessageOptions are the optional fields of a new message.
type MessageOptions struct {
	ThreadIDs []string
	Tags      []string
}

// CreateMessage builds a new message with a fresh id and timestamp. Content is trimmed.
// Nothing is appended anywhere.
func CreateMessage(username, content string, opts MessageOptions) Message {
	return Message{
		ID:        NewID(),
		Username:  username,
		Timestamp: Now(),
		Content:   strings.TrimSpace(content),
		ThreadIDs: slices.Clone(opts.ThreadIDs),
		Tags:      dedupeTags(opts.Tags),
	}
}

func dedupeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// MessageUpdate is a shallow patch. Nil fields are left alone; an empty non-nil slice
// clears the field. Thread links are not patchable: they are only appended by
// AppendThreadID when a thread is created.
type MessageUpdate struct {
	Content *string
	Tags    []string
}

// IndexOfMessage returns the position of id in messages, or -1.
func IndexOfMessage(messages []Message, id string) int {
	return slices.IndexFunc(messages, func(m Message) bool { return m.ID == id })
}

// UpdateMessage merges upd into the message with id.
func UpdateMessage(messages []Message, id string, upd MessageUpdate) (*Change[Message], Result) {
	i := IndexOfMessage(messages, id)
	if i < 0 {
		return nil, NotFound
	}
	m := messages[i].Clone()
	if upd.Content != nil {
		content := strings.TrimSpace(*upd.Content)
		if content != m.Content {
			m.Content = content
			m.EditedAt = Now()
		}
	}
	if upd.Tags != nil {
		m.Tags = dedupeTags(upd.Tags)
	}
	return replaceAt(messages, i, m), Applied
}

// AddTagToMessage appends tag to the message. Adding a tag that is already present is
// Unchanged.
func AddTagToMessage(messages []Message, id, tag string) (*Change[Message], Result) {
	tag = strings.TrimSpace(tag)
	i := IndexOfMessage(messages, id)
	if i < 0 {
		return nil, NotFound
	}
	if tag == "" || messages[i].HasTag(tag) {
		return nil, Unchanged
	}
	m := messages[i].Clone()
	m.Tags = append(m.Tags, tag)
	return replaceAt(messages, i, m), Applied
}

// RemoveTagFromMessage drops tag from the message. Removing an absent tag is Unchanged.
func RemoveTagFromMessage(messages []Message, id, tag string) (*Change[Message], Result) {
	tag = strings.TrimSpace(tag)
	i := IndexOfMessage(messages, id)
	if i < 0 {
		return nil, NotFound
	}
	if !messages[i].HasTag(tag) {
		return nil, Unchanged
	}
	m := messages[i].Clone()
	m.Tags = slices.DeleteFunc(m.Tags, func(t string) bool { return t == tag })
	if len(m.Tags) == 0 {
		m.Tags = nil
	}
	return replaceAt(messages, i, m), Applied
}

// AppendThreadID links a thread rooted at the message. Links are never removed.
func AppendThreadID(messages []Message, id, threadID string) (*Change[Message], Result) {
	i := IndexOfMessage(messages, id)
	if i < 0 {
		return nil, NotFound
	}
	if slices.Contains(messages[i].ThreadIDs, threadID) {
		return nil, Unchanged
	}
	m := messages[i].Clone()
	m.ThreadIDs = append(m.ThreadIDs, threadID)
	return replaceAt(messages, i, m), Applied
}
