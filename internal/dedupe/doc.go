// Package dedupe keeps a short-lived record of work that has already been claimed, so
// a trigger seen twice (a replayed sync update, a reconnecting replica) is acted on
// once.
package dedupe
