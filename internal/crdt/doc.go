// Package crdt provides the replicated document that every workspace record lives in.
//
// # Overview
//
// A Doc is a set of named containers addressed by stable string keys:
//
//   - Array: an ordered sequence of JSON values (RGA list with tombstones)
//   - Map: string keys to JSON values, last writer wins per key
//   - Text: a rune sequence for rich-text fragments
//
// Containers are created lazily; asking for the same name twice returns the same
// underlying container. Typed access goes through ArrayOf and MapOf.
//
// # Transactions
//
// Every mutation happens inside Doc.Transact:
//
//	err := doc.Transact(func(tx *crdt.Txn) error {
//		if err := messages.In(tx).Push(msg); err != nil {
//			return err
//		}
//		return threads.In(tx).Replace(idx, thread)
//	})
//
// The document write lock is held for the whole frame, so outside readers never see a
// partially-applied transaction. Returning an error (or panicking) undoes every
// mutation made in the frame and suppresses all notifications. A successful frame
// emits exactly one Update to OnUpdate handlers and one event per changed container.
//
// Side effects performed inside the frame that are not document mutations are not
// undone.
//
// # Replication
//
// Every op carries an ID{Client, Clock} from a Lamport clock. ApplyUpdate integrates
// remote ops idempotently and parks ops whose dependencies have not arrived yet.
// EncodeStateAsUpdate returns the full op log for initial sync.
//
// # Events
//
// Array and Text observers receive deltas as runs of Retain, Insert and Delete.
// Map observers receive per-key add/update/delete changes. Notifications are delivered
// after the write lock is released, in commit order. Observers may read the document
// but must not start a transaction synchronously.
package crdt
