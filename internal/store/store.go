// ABOUTME: Store interface and data types for document persistence
// ABOUTME: A document is persisted as an append-only log of encoded updates, optionally compacted to a snapshot

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// UpdateRecord is one persisted update (or compacted snapshot) of a document.
type UpdateRecord struct {
	Seq       int64
	Document  string
	Payload   []byte
	Snapshot  bool // true for the record written by Compact
	CreatedAt time.Time
}

// DocumentStats summarizes the stored log of one document.
type DocumentStats struct {
	Document  string
	Updates   int
	Bytes     int64
	LastSeq   int64
	UpdatedAt time.Time
}

// Store persists document update logs.
type Store interface {
	// AppendUpdate stores payload at the end of the document's log and returns its sequence number.
	AppendUpdate(ctx context.Context, document string, payload []byte) (int64, error)

	// LoadUpdates returns the document's records with Seq > afterSeq in order.
	LoadUpdates(ctx context.Context, document string, afterSeq int64) ([]UpdateRecord, error)

	// Compact atomically replaces every record of the document with one snapshot.
	Compact(ctx context.Context, document string, snapshot []byte) (int64, error)

	// DocumentStats returns log statistics, or ErrNotFound if the document has no records.
	DocumentStats(ctx context.Context, document string) (*DocumentStats, error)

	// ListDocuments returns the names of every stored document.
	ListDocuments(ctx context.Context) ([]string, error)

	Close() error
}
