// Package queue implements the durable FIFO of pending measurements.
//
// The queue is an append-only journal of CBOR records next to an advisory
// lock file. Every operation takes an in-process semaphore and then an
// flock on the lock file, both bounded by the configured lock timeout, so
// the daemon and the CLI can share one journal safely.
//
// On open, and whenever another process has changed the journal, the
// in-memory state is rebuilt by replaying every record in order. A torn
// trailing record left by a crash is truncated. When dead records
// outnumber live ones the journal is compacted with an atomic rewrite.
package queue
