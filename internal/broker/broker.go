// Package broker composes the port allocator, the session registry and the
// per-session forwarders behind one façade. It is the locking boundary
// between concurrent API callers and the resources they mutate.
package broker

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"gateport/internal/audit"
	"gateport/internal/config"
	"gateport/internal/constants"
	"gateport/internal/forward"
	"gateport/internal/logger"
	"gateport/internal/portpool"
	"gateport/internal/session"
	"gateport/internal/store"
)

type Broker struct {
	cfg      *config.Config
	registry *session.Registry
	store    store.Store
	audit    *audit.Logger
	onEvent  func(Event)

	// mu serializes every transition together with its forwarder effect, so
	// a port released by a revoke cannot be re-bound before the old
	// listener is closed.
	mu         sync.Mutex
	forwarders map[string]*forward.Forwarder

	reaperCancel context.CancelFunc
	reaperWG     sync.WaitGroup
	closeOnce    sync.Once
}

// New builds a broker from its configuration. The store and the audit trail
// are optional collaborators: pass store.Disabled{} and a nil audit logger
// to run without them.
func New(cfg *config.Config, st store.Store, auditLog *audit.Logger) *Broker {
	if st == nil {
		st = store.Disabled{}
	}

	pool := portpool.New(cfg.PortRangeLow, cfg.PortRangeHigh)
	codes := session.NewCodeGenerator(cfg.CodeLength, cfg.CodeAlphabet)

	if records := st.List(); len(records) > 0 {
		log.Printf("💾 %d session record(s) left over from a previous run", len(records))
	}

	return &Broker{
		cfg:        cfg,
		registry:   session.NewRegistry(pool, codes),
		store:      st,
		audit:      auditLog,
		forwarders: make(map[string]*forward.Forwarder),
	}
}

// CreateSession reserves a port and registers a Pending session. When
// approval is not required it immediately approves and starts forwarding,
// returning the session already Active.
func (b *Broker) CreateSession(userInfo map[string]string, ttl time.Duration) (session.Snapshot, error) {
	ttl = b.clampTTL(ttl)

	snap, err := b.registry.Create(userInfo, ttl)
	if err != nil {
		return session.Snapshot{}, err
	}

	b.audit.LogCreated(snap.Code, snap.Port, ttl)
	b.store.Save(snap)
	b.emit(EventCreated, snap)
	log.Printf("🔔 Session %s created on port %d (ttl %s)", snap.Code, snap.Port, ttl)

	if b.cfg.RequireApproval {
		return snap, nil
	}
	return b.ApproveSession(snap.Code)
}

// ApproveSession moves a Pending session to Active and starts its forwarder.
// If the listener cannot claim the port, the session is rolled back to
// Revoked, the port is released, and the bind error is returned.
func (b *Broker) ApproveSession(code string) (session.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.registry.Approve(code)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := b.startWithRollbackLocked(snap); err != nil {
		return session.Snapshot{}, err
	}

	b.audit.LogApproved(code, snap.Port)
	b.store.Save(snap)
	b.emit(EventApproved, snap)
	log.Printf("✅ Session %s approved, forwarding on port %d", code, snap.Port)
	return snap, nil
}

// RevokeSession terminates a Pending or Active session, stops its forwarder
// and releases its port.
func (b *Broker) RevokeSession(code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.registry.Revoke(code)
	if err != nil {
		return err
	}
	b.stopForwardingLocked(code)

	b.audit.LogRevoked(code, snap.Port)
	b.store.Save(snap)
	b.emit(EventRevoked, snap)
	log.Printf("⛔ Session %s revoked, port %d released", code, snap.Port)
	return nil
}

// GetSession resolves a code to a snapshot. Codes missing from the registry
// fall back to the persisted record, which lets operators inspect sessions
// from a previous run.
func (b *Broker) GetSession(code string) (session.Snapshot, bool) {
	if snap, ok := b.registry.Get(code); ok {
		return snap, true
	}
	return b.store.Get(code)
}

// ListSessions returns every registered session ordered by creation time.
func (b *Broker) ListSessions() []session.Snapshot {
	return b.registry.List()
}

// Stats aggregates session and port counters.
func (b *Broker) Stats() session.Summary {
	return b.registry.Summary()
}

// StartForwarding starts the forwarder of an Active session. Calling it on a
// session that is already forwarding is a no-op; calling it on a non-Active
// session is an invalid transition.
func (b *Broker) StartForwarding(code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, ok := b.registry.Get(code)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, code)
	}
	if snap.Status != session.StatusActive {
		return fmt.Errorf("%w: cannot forward %s session %s", session.ErrInvalidTransition, snap.Status, code)
	}
	return b.startWithRollbackLocked(snap)
}

// ConnectionEndpoint returns the address clients should connect to,
// resolvable only while the session is Active.
func (b *Broker) ConnectionEndpoint(code string) (session.Endpoint, bool) {
	snap, ok := b.registry.Get(code)
	if !ok || snap.Status != session.StatusActive {
		return session.Endpoint{}, false
	}
	return session.Endpoint{Host: b.cfg.Host, Port: snap.Port}, true
}

// PruneSessions removes terminal sessions from the registry and drops their
// persisted records. Their codes become reusable.
func (b *Broker) PruneSessions() []session.Snapshot {
	removed := b.registry.Prune()
	for _, snap := range removed {
		b.store.Delete(snap.Code)
		b.audit.LogPruned(snap.Code)
		b.emit(EventPruned, snap)
	}
	if len(removed) > 0 {
		log.Printf("🗑 Pruned %d terminal session(s)", len(removed))
	}
	return removed
}

// Close stops the reaper, every forwarder, and the collaborating store and
// audit trail. Safe to call more than once.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		if b.reaperCancel != nil {
			b.reaperCancel()
		}
		b.reaperWG.Wait()

		b.mu.Lock()
		for code, fwd := range b.forwarders {
			delete(b.forwarders, code)
			fwd.Stop()
		}
		b.mu.Unlock()

		if err := b.store.Close(); err != nil {
			log.Printf("⚠️ Store close failed: %v", err)
		}
		if err := b.audit.Close(); err != nil {
			log.Printf("⚠️ Audit log close failed: %v", err)
		}
		log.Println("🛑 Broker stopped")
	})
}

// startWithRollbackLocked starts forwarding for snap; a bind failure rolls
// the session back to Revoked so its port is never left dangling.
func (b *Broker) startWithRollbackLocked(snap session.Snapshot) error {
	err := b.startForwardingLocked(snap)
	if err == nil {
		return nil
	}

	if revoked, rerr := b.registry.Revoke(snap.Code); rerr == nil {
		b.audit.LogBindFailure(snap.Code, snap.Port, err.Error())
		b.store.Save(revoked)
		b.emit(EventRevoked, revoked)
		log.Printf("🔥 Session %s rolled back, port %d could not be bound: %v", snap.Code, snap.Port, err)
	}
	return err
}

func (b *Broker) startForwardingLocked(snap session.Snapshot) error {
	if _, running := b.forwarders[snap.Code]; running {
		return nil
	}

	stats, ok := b.registry.SessionStats(snap.Code)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, snap.Code)
	}

	fwd := forward.New(forward.Config{
		Code:        snap.Code,
		Port:        snap.Port,
		BackendAddr: b.cfg.BackendAddr(),
		DialTimeout: b.cfg.DialTimeout,
		MaxConns:    b.cfg.MaxSessionConns,
	}, stats, b.newRelayLog(snap.Code))

	code, port := snap.Code, snap.Port
	fwd.OnDialFailure = func(err error) {
		b.audit.LogBackendUnreachable(code, port, err.Error())
	}

	if err := fwd.Start(); err != nil {
		return err
	}
	b.forwarders[snap.Code] = fwd
	return nil
}

func (b *Broker) stopForwardingLocked(code string) {
	if fwd, ok := b.forwarders[code]; ok {
		delete(b.forwarders, code)
		fwd.Stop()
	}
}

func (b *Broker) newRelayLog(code string) *logger.Logger {
	lg, err := logger.New(filepath.Join(b.cfg.DataDir, "logs"), code)
	if err != nil {
		log.Printf("⚠️ Relay log unavailable for session %s: %v", code, err)
		return nil
	}
	return lg
}

func (b *Broker) clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return b.cfg.SessionTTL
	case ttl < constants.MinSessionDuration:
		log.Printf("⚠️ Requested ttl %s below minimum, using %s", ttl, constants.MinSessionDuration)
		return constants.MinSessionDuration
	case ttl > constants.MaxSessionDuration:
		log.Printf("⚠️ Requested ttl %s above maximum, using %s", ttl, constants.MaxSessionDuration)
		return constants.MaxSessionDuration
	default:
		return ttl
	}
}
