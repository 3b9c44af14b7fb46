// Package store persists one serialized record per session, written on every
// state transition. Records exist for inspection and post-mortem recovery;
// the in-memory registry stays authoritative while the process is alive, so
// every operation here is best-effort and failures are logged, not returned.
package store

import "gateport/internal/session"

type Store interface {
	// Save writes the snapshot, replacing any previous record for its code.
	Save(snap session.Snapshot)

	// Get returns the stored record for a code, if any.
	Get(code string) (session.Snapshot, bool)

	// List returns every stored record.
	List() []session.Snapshot

	// Delete removes the record for a code.
	Delete(code string)

	Close() error
}
