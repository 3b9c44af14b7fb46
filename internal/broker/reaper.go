package broker

import (
	"context"
	"log"
	"time"
)

// Start launches the expiry reaper. Worst-case staleness of an expired
// session equals one cleanup interval; nothing triggers an out-of-band sweep.
func (b *Broker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.reaperCancel = cancel

	b.reaperWG.Add(1)
	go b.runReaper(ctx)

	log.Printf("🚀 Broker started: ports [%d, %d), backend %s, reaper every %s",
		b.cfg.PortRangeLow, b.cfg.PortRangeHigh, b.cfg.BackendAddr(), b.cfg.CleanupInterval)
}

func (b *Broker) runReaper(ctx context.Context) {
	defer b.reaperWG.Done()

	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reapExpired(time.Now())
		}
	}
}

// reapExpired transitions every overdue session to Expired, with the same
// effects as a revoke.
func (b *Broker) reapExpired(now time.Time) {
	for _, code := range b.registry.DueForExpiry(now) {
		b.expireSession(code)
	}
}

func (b *Broker) expireSession(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.registry.Expire(code)
	if err != nil {
		// Lost a race with a concurrent revoke; the session is already
		// terminal and its port already released.
		return
	}
	b.stopForwardingLocked(code)

	b.audit.LogExpired(code, snap.Port)
	b.store.Save(snap)
	b.emit(EventExpired, snap)
	log.Printf("🗑 Session %s expired, port %d released", code, snap.Port)
}
