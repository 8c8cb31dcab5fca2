// ABOUTME: Document-backed tag operations on messages and the global tag list
// ABOUTME: Removing a global tag leaves message-level tags alone; the two stores are independent

package workspace

import (
	"slices"
	"strings"

	"github.com/2389/hearth/internal/crdt"
	"github.com/2389/hearth/internal/records"
)

// AddTagToMessage tags a message and records the tag globally if it is new there.
// Adding a tag the message already has is records.Unchanged.
func (h *Handle) AddTagToMessage(messageID, tag string) (records.Result, error) {
	tag = strings.TrimSpace(tag)
	var res records.Result
	err := h.transact(func(tx *crdt.Txn) error {
		messages := h.messages.In(tx)
		var ch *records.Change[records.Message]
		ch, res = records.AddTagToMessage(messages.ToArray(), messageID, tag)
		if res != records.Applied {
			return nil
		}
		if err := messages.Replace(ch.Index, ch.Item()); err != nil {
			return err
		}
		return h.ensureGlobalTag(tx, tag)
	})
	if err != nil {
		return records.NotFound, err
	}
	return res, nil
}

// RemoveTagFromMessage untags a message. The global tag list is not touched.
func (h *Handle) RemoveTagFromMessage(messageID, tag string) (records.Result, error) {
	tag = strings.TrimSpace(tag)
	var res records.Result
	err := h.transact(func(tx *crdt.Txn) error {
		messages := h.messages.In(tx)
		var ch *records.Change[records.Message]
		ch, res = records.RemoveTagFromMessage(messages.ToArray(), messageID, tag)
		if res != records.Applied {
			return nil
		}
		return messages.Replace(ch.Index, ch.Item())
	})
	if err != nil {
		return records.NotFound, err
	}
	return res, nil
}

// ensureGlobalTag appends tag to the global list unless it is already there.
func (h *Handle) ensureGlobalTag(tx *crdt.Txn, tag string) error {
	tags := h.tags.In(tx)
	if slices.Contains(tags.ToArray(), tag) {
		return nil
	}
	return tags.Push(tag)
}

// Tags returns the global tag list in the order tags were first used.
func (h *Handle) Tags() []string {
	return nonNil(h.tags.ToArray())
}

// RemoveGlobalTag drops tag from the global list. Messages keep their copies.
func (h *Handle) RemoveGlobalTag(tag string) (records.Result, error) {
	res := records.NotFound
	err := h.transact(func(tx *crdt.Txn) error {
		tags := h.tags.In(tx)
		i := slices.Index(tags.ToArray(), tag)
		if i < 0 {
			return nil
		}
		res = records.Applied
		return tags.Delete(i, 1)
	})
	if err != nil {
		return records.NotFound, err
	}
	return res, nil
}
