package session

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gateport/internal/constants"
	"gateport/internal/portpool"
)

// Registry holds every session and owns their state machine. One lock covers
// lookup and transitions; per-session traffic counters stay atomic so relay
// goroutines never touch the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ports    *portpool.Allocator
	codes    *CodeGenerator
}

func NewRegistry(ports *portpool.Allocator, codes *CodeGenerator) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ports:    ports,
		codes:    codes,
	}
}

// Create reserves a port, generates a unique code and stores a new Pending
// session. If the pool is exhausted no session is created.
func (r *Registry) Create(userInfo map[string]string, ttl time.Duration) (Snapshot, error) {
	if ttl <= 0 {
		return Snapshot{}, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.uniqueCodeLocked()
	if err != nil {
		return Snapshot{}, err
	}
	port, err := r.ports.Allocate()
	if err != nil {
		return Snapshot{}, err
	}

	now := time.Now()
	sess := &Session{
		Code:      code,
		Port:      port,
		UserInfo:  cloneUserInfo(userInfo),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    StatusPending,
		Stats:     NewStats(),
	}
	r.sessions[code] = sess
	return sess.snapshot(), nil
}

// uniqueCodeLocked draws codes until one misses the current code set. Codes
// stay reserved until their session is pruned, so persistent collisions mean
// the configured code space is too small for the live session count.
func (r *Registry) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < constants.CodeMaxAttempts; attempt++ {
		code, err := r.codes.Generate()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, constants.CodeMaxAttempts)
}

// Approve moves a Pending session to Active. Any other current status is an
// error, including Active, so racing approvers can tell they lost.
func (r *Registry) Approve(code string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[code]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if sess.Status != StatusPending {
		return Snapshot{}, fmt.Errorf("%w: cannot approve %s session %s", ErrInvalidTransition, sess.Status, code)
	}
	sess.Status = StatusActive
	sess.ApprovedAt = time.Now()
	return sess.snapshot(), nil
}

// Revoke terminates a Pending or Active session and releases its port.
func (r *Registry) Revoke(code string) (Snapshot, error) {
	return r.terminate(code, StatusRevoked)
}

// Expire is the reaper's revoke: identical effects, terminal status Expired.
func (r *Registry) Expire(code string) (Snapshot, error) {
	return r.terminate(code, StatusExpired)
}

func (r *Registry) terminate(code string, to Status) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[code]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if sess.Status.Terminal() {
		return Snapshot{}, fmt.Errorf("%w: session %s is already %s", ErrInvalidTransition, code, sess.Status)
	}
	sess.Status = to
	sess.RevokedAt = time.Now()

	// The terminal guard above means each session reaches here once, so the
	// port cannot be double-released.
	if err := r.ports.Release(sess.Port); err != nil {
		log.Printf("⚠️ Port %d release failed for session %s: %v", sess.Port, code, err)
	}
	return sess.snapshot(), nil
}

// Get returns a snapshot of the session, terminal or not.
func (r *Registry) Get(code string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[code]
	if !ok {
		return Snapshot{}, false
	}
	return sess.snapshot(), true
}

// List returns snapshots of every session ordered by creation time.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Prune removes terminal sessions from the registry and returns them. Their
// codes become reusable afterwards.
func (r *Registry) Prune() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Snapshot
	for code, sess := range r.sessions {
		if sess.Status.Terminal() {
			removed = append(removed, sess.snapshot())
			delete(r.sessions, code)
		}
	}
	return removed
}

// DueForExpiry returns the codes of non-terminal sessions whose deadline has
// passed at now.
func (r *Registry) DueForExpiry(now time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []string
	for code, sess := range r.sessions {
		if !sess.Status.Terminal() && sess.Expired(now) {
			due = append(due, code)
		}
	}
	return due
}

// SessionStats returns the live counter set shared with relay goroutines.
func (r *Registry) SessionStats(code string) (*Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[code]
	if !ok {
		return nil, false
	}
	return sess.Stats, true
}

// Summary aggregates registry and pool counters.
type Summary struct {
	ActiveSessions int `json:"active_sessions"`
	TotalSessions  int `json:"total_sessions"`
	FreePorts      int `json:"free_ports"`
	UsedPorts      int `json:"used_ports"`
}

func (r *Registry) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := 0
	for _, sess := range r.sessions {
		if sess.Status == StatusActive {
			active++
		}
	}
	return Summary{
		ActiveSessions: active,
		TotalSessions:  len(r.sessions),
		FreePorts:      r.ports.Available(),
		UsedPorts:      r.ports.InUse(),
	}
}
