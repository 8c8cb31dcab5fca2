// ABOUTME: Domain value types for the workspace: messages, threads, wiki pages, templates, highlights
// ABOUTME: JSON field names are the wire shape stored in the shared document

package records

import (
	"errors"
	"slices"
	"time"
)

// TimestampLayout is the wire format of record timestamps (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ErrEmptyPath is returned when a wiki path normalizes to nothing.
var ErrEmptyPath = errors.New("empty wiki path")

// Message is one chat message.
type Message struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Timestamp string   `json:"timestamp"`
	Content   string   `json:"content"`
	ThreadIDs []string `json:"thread_ids,omitempty"` // threads rooted at this message, append-only
	Tags      []string `json:"tags,omitempty"`
	EditedAt  string   `json:"edited_at,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.ThreadIDs = slices.Clone(m.ThreadIDs)
	m.Tags = slices.Clone(m.Tags)
	return m
}

// HasTag reports whether the message carries tag.
func (m Message) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Thread is a reply chain rooted at a parent message.
type Thread struct {
	ID              string   `json:"id"`
	ParentMessageID string   `json:"parent_message_id"`
	MessageIDs      []string `json:"message_ids"`
}

// Clone returns a copy that shares no slices with t.
func (t Thread) Clone() Thread {
	t.MessageIDs = slices.Clone(t.MessageIDs)
	if t.MessageIDs == nil {
		t.MessageIDs = []string{}
	}
	return t
}

// WikiPage is the metadata of one wiki page. Pages are keyed by Path.
type WikiPage struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Title     string `json:"title"`
	WikiID    string `json:"wiki_id"`
	CreatedAt string `json:"created_at"`
}

// WikiTemplate is a reusable starting body for new pages. Templates are keyed by ID.
type WikiTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

// Highlight is a reader annotation on a book range.
type Highlight struct {
	ID        string `json:"id"`
	BookID    string `json:"book_id"`
	CFIRange  string `json:"cfi_range"`
	Text      string `json:"text"`
	Color     string `json:"color,omitempty"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

// Result reports the outcome of an operation that may legitimately do nothing.
type Result int

const (
	Applied Result = iota
	NotFound
	Unchanged
)

// OK reports whether the operation changed anything.
func (r Result) OK() bool {
	return r == Applied
}

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case NotFound:
		return "not_found"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Change is the next state of a collection after one record was replaced.
type Change[T any] struct {
	Items []T // full next state
	Index int // position of the replaced record
}

// Item returns the replaced record in its new form.
func (c *Change[T]) Item() T {
	return c.Items[c.Index]
}

func replaceAt[T any](items []T, index int, v T) *Change[T] {
	next := slices.Clone(items)
	next[index] = v
	return &Change[T]{Items: next, Index: index}
}

// Now returns the current time in TimestampLayout.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTime parses a TimestampLayout string.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
