/*
Package session implements session management for conversation turns.

The Manager serializes work on a session with a reference-counted local mutex,
optionally backed by a distributed lock so that replicas sharing a store do
not interleave turns. It also resolves the session for a turn: by id when the
client sends one, otherwise the oldest session of the visitor/origin pair, or
a fresh session at the flow's start node.
*/
package session
