// Package workspace is the document-backed layer of the collaborative workspace.
//
// A Handle wraps one replicated document and is the only code that mutates its
// containers. Every operation runs in exactly one transaction, so a message and the
// thread update that links it, or a thread and the parent message that points at it,
// are seen together or not at all by local readers and remote replicas.
//
// # Containers
//
//   - messages: array of records.Message, append or replace-in-place only
//   - threads: array of records.Thread
//   - tags: array of distinct tag strings
//   - wiki-pages: map of normalized path to records.WikiPage
//   - wiki-templates: map of id to records.WikiTemplate
//   - highlights: map of id to records.Highlight
//   - wiki-content:<page id>: text body of one page
//
// # Bots
//
// After a message commits, its @mentions of configured bots are enqueued on the
// handle's botqueue.Queue. Enqueueing happens outside the transaction and is never
// rolled back.
package workspace
