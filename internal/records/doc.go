// Package records holds the workspace's domain values and the pure operations over them.
//
// Nothing in this package touches a document. Every function takes plain slices of
// Message, Thread or WikiPage values and returns a new value (or a Change describing
// where a single record landed) so the document-backed layer can apply the result with
// one positional delete and insert.
//
// # Results
//
// Lookup-shaped operations report what happened through Result:
//
//   - Applied: the record changed
//   - NotFound: the id did not resolve
//   - Unchanged: the operation was an idempotent no-op (tag already present, etc.)
//
// Callers that only care whether anything happened use Result.OK.
//
// # Identifiers
//
// Record ids are ULIDs. The millisecond prefix makes lexical order approximate creation
// order across replicas, and IDTime recovers the creation time.
package records
