// Package relay is the sync channel between document replicas.
//
// # Architecture
//
// A Hub holds one room per document name. Each room owns an authoritative
// crdt.Doc that is loaded from the store on first use and persists every
// committed update it integrates. Peers never talk to each other directly:
//
//	peer A ──update──▶ room doc ──persist──▶ store
//	                       │
//	                       └──fan-out──▶ peer B, peer C (never back to A)
//
// Peers join either in-process (Hub.Connect) or over a websocket
// (Server + Dialer). Both paths perform a full-state exchange on join: the
// room's state is applied to the peer first, then the peer's state is
// applied to the room, so a replica that edited offline converges as soon as
// it reconnects.
//
// # Fan-out
//
// Fan-out is non-blocking. Each peer has a buffered mailbox; when it is full
// the update is dropped for that peer and the mailbox is marked stale, and
// the peer's pump follows up with a full-state update once it catches up.
// CRDT updates are idempotent, so the resync costs bandwidth but never
// correctness.
//
// # Wire format
//
// Websocket frames are binary messages carrying crdt.Update JSON. An empty
// frame is a keepalive. The server sends the room state as the first frame.
package relay
