// ABOUTME: Reader highlight construction
// ABOUTME: Highlights are stored per id and are the one reader record that can be deleted

package records

import "strings"

// NewHighlight builds a highlight on bookID covering cfiRange.
func NewHighlight(bookID, cfiRange, text, color, username string) Highlight {
	return Highlight{
		ID:        NewID(),
		BookID:    bookID,
		CFIRange:  cfiRange,
		Text:      strings.TrimSpace(text),
		Color:     color,
		Username:  username,
		CreatedAt: Now(),
	}
}
