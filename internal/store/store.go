// Package store persists KEL and TEL event streams keyed by identifier
// prefix, the way §6 of the spec requires: a key-value store opened by
// prefix, appends in sn order, and streamed iteration. It keeps no index of
// cross-anchor seals. Grounded on the teacher's sqlite-backed append-only
// log (sqlite_store.go): WAL journaling, a single append transaction per
// write, channel-based streaming reads.
package store

import "github.com/karasz/kelissuer/internal/errs"

// Record is one framed, already wire-composed event as it is persisted:
// the caller (kel/tel engine) hands over the wire.Compose output (for the
// KEL, the signed event with its signatures) and gets exactly those bytes
// back on read.
type Record struct {
	Prefix string
	Sn     uint64
	Data   []byte
}

// Store is the append-only, (prefix, sn)-keyed log this controller's KEL
// and TEL both sit on. One Store instance backs one log file.
type Store interface {
	// Append writes r. The store enforces sn contiguity per prefix:
	// Append fails unless r.Sn is exactly one past the prefix's current
	// tail (or 0 for a prefix's first event).
	Append(r Record) error

	// Get returns the event at (prefix, sn), or ok=false if absent.
	Get(prefix string, sn uint64) (data []byte, ok bool, err error)

	// TailSn returns the highest sn stored for prefix, and ok=false if
	// the prefix has no events yet.
	TailSn(prefix string) (sn uint64, ok bool, err error)

	// Iter streams every event for prefix starting at startSn in
	// ascending sn order. The returned cancel function must be called
	// once the caller is done draining or abandoning the channel.
	Iter(prefix string, startSn uint64) (out <-chan Record, cancel func(), err error)

	// Close releases the underlying file/connection.
	Close() error
}

// ErrNotFound mirrors a missing (prefix, sn) lookup where an error return
// rather than an ok=false is more convenient for the caller.
var ErrNotFound = errs.New(errs.KindStore, "no such event")
