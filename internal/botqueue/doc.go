// Package botqueue is the in-memory ledger of bot invocations.
//
// An invocation is enqueued when a message mentions a bot and moves through
//
//	pending -> processing -> completed | failed
//
// The queue does not run bots. Consumers (see package agent) claim an invocation with
// StartProcessing, which fixes the id of the reply thread, and finish it with Complete
// or Fail. StartProcessing is safe to race: across any interleaving of callers at most
// one claim of an id succeeds.
//
// Terminal entries are removed by Cleanup once they are older than a max age. Entries
// stuck in processing for longer than the same max age are removed too. Reclaim is an
// explicit opt-in that puts a stuck entry back to pending; nothing calls it by default.
//
// Every mutation notifies subscribers synchronously, on the mutating goroutine, after
// the queue lock is released.
package botqueue
