// ABOUTME: Message filtering used by the query command and API
// ABOUTME: Filters combine with AND; Limit keeps the most recent matches

package records

import (
	"slices"
	"strings"
)

// MessageQuery selects messages. Zero fields do not filter.
type MessageQuery struct {
	HasTag   string `json:"has_tag,omitempty"`
	Username string `json:"username,omitempty"`
	ThreadID string `json:"thread_id,omitempty"` // members of this thread
	Contains string `json:"contains,omitempty"`  // case-insensitive substring of content
	Limit    int    `json:"limit,omitempty"`
}

// FilterMessages returns the messages matching q in document order.
func FilterMessages(messages []Message, threads []Thread, q MessageQuery) []Message {
	var members map[string]bool
	if q.ThreadID != "" {
		members = make(map[string]bool)
		if t, ok := FindThread(threads, q.ThreadID); ok {
			for _, id := range t.MessageIDs {
				members[id] = true
			}
		}
	}
	needle := strings.ToLower(q.Contains)

	out := make([]Message, 0)
	for _, m := range messages {
		switch {
		case q.HasTag != "" && !slices.Contains(m.Tags, q.HasTag):
		case q.Username != "" && m.Username != q.Username:
		case members != nil && !members[m.ID]:
		case needle != "" && !strings.Contains(strings.ToLower(m.Content), needle):
		default:
			out = append(out, m)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}
