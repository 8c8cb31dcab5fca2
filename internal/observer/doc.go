// Package observer turns container change deltas into a typed event log.
//
// An Observer subscribes to the workspace's messages, threads and tags arrays and its
// wiki page map. Each array delta is reduced with a running cursor: an insert run emits
// one added event per item and advances the cursor, a delete run emits one deleted
// event per item at the same index, and a retain run only advances the cursor. Deleted
// events carry no item because the container no longer has it.
//
// Events are appended to an in-memory log and handed synchronously to subscribers.
// WaitForEvent blocks until the next event of a type, a timeout, or context
// cancellation, and always unsubscribes.
package observer
