package store

import "gateport/internal/session"

// Disabled is the store used when persistence is turned off.
type Disabled struct{}

func (Disabled) Save(session.Snapshot) {}

func (Disabled) Get(string) (session.Snapshot, bool) { return session.Snapshot{}, false }

func (Disabled) List() []session.Snapshot { return nil }

func (Disabled) Delete(string) {}

func (Disabled) Close() error { return nil }
