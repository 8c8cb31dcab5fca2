// Package store persists replicated documents as append-only update logs.
//
// # Architecture
//
// A document is never stored as rows of messages or threads. Instead every
// committed update produced by the document (see package crdt) is appended
// to a per-document log, and replaying the log in sequence order rebuilds
// the document on any replica. Compact replaces the log with a single
// full-state snapshot so that cold starts do not replay unbounded history.
//
// Two implementations are provided:
//
//   - SQLiteStore: durable log in SQLite (modernc.org/sqlite, no cgo)
//   - MemoryStore: in-memory log for tests and ephemeral sessions
//
// # Schema
//
//	document_updates(seq, document, payload, snapshot, created_at)
//
// seq is a global AUTOINCREMENT key, so within one document it is strictly
// increasing. created_at is stored as RFC3339 text and parsed on read.
//
// # Errors
//
// DocumentStats returns ErrNotFound for documents with no records. All other
// failures are wrapped with the operation that failed.
package store
