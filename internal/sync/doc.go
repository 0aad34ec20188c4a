// Package sync keeps a client-visible view of a student's scheduled tasks
// consistent with the database through two independent channels.
//
// The push channel is a Postgres LISTEN/NOTIFY feed (PGFeed): a row-level
// trigger on the tasks table notifies inserts, updates and deletes, and the
// feed fans them out to per-engine subscribers filtered by scope. The pull
// channel is a fallback poller that re-fetches the full window on a fixed
// interval, but only while the feed is not live.
//
// Both channels converge on one Engine per (user, window). The engine owns a
// Reconciler holding the authoritative TaskView and serializes every state
// signal - feed events, poll snapshots, optimistic mutations and their
// rollbacks - through a single apply goroutine, so there are never two
// writers racing on the same view. Snapshot application is a barrier: it
// happens after every event processed before it and before any event queued
// after it.
//
// Local writes go through the Gateway: an optimistic apply into the view,
// then the remote write, then a rollback if the write is rejected. The
// authoritative echo of a successful write arrives later through the feed or
// the next poll and lands as a no-op thanks to the reconciler's change
// detection.
package sync
