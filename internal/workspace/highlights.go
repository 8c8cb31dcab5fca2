// ABOUTME: Document-backed reader highlights
// ABOUTME: Highlights are keyed by id so one can be removed without touching the others

package workspace

import (
	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
)

// AddHighlight stores a highlight on bookID.
func (h *Handle) AddHighlight(bookID, cfiRange, text, color, username string) (records.Highlight, error) {
	hl := records.NewHighlight(bookID, cfiRange, text, color, username)
	err := h.transact(func(tx *crdt.Txn) error {
		return h.highlights.In(tx).Set(hl.ID, hl)
	})
	if err != nil {
		return records.Highlight{}, err
	}
	return hl, nil
}

// RemoveHighlight deletes the highlight with id.
func (h *Handle) RemoveHighlight(id string) (records.Result, error) {
	res := records.NotFound
	err := h.transact(func(tx *crdt.Txn) error {
		if h.highlights.In(tx).Delete(id) {
			res = records.Applied
		}
		return nil
	})
	if err != nil {
		return records.NotFound, err
	}
	return res, nil
}

// ListHighlights returns the highlights on bookID in creation order. An empty bookID
// returns every highlight.
func (h *Handle) ListHighlights(bookID string) []records.Highlight {
	out := []records.Highlight{}
	for _, hl := range h.highlights.Values() {
		if bookID == "" || hl.BookID == bookID {
			out = append(out, hl)
		}
	}
	return out
}
