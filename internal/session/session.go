// Package session owns the session records of the gateway: their state
// machine, code-based lookup, and per-session traffic counters.
package session

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Terminal reports whether the status is final. Terminal sessions keep their
// record until pruned but never hold a port.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// Session is the live record held by the Registry. Mutable fields are
// guarded by the registry lock; Stats has its own atomic counters and may be
// shared with relay goroutines.
type Session struct {
	Code      string
	Port      int
	UserInfo  map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time

	Status     Status
	ApprovedAt time.Time
	RevokedAt  time.Time

	Stats *Stats
}

// Snapshot is an immutable copy of a session, safe to hand across goroutines
// and to serialize.
type Snapshot struct {
	Code       string            `json:"code"`
	Port       int               `json:"port"`
	Status     Status            `json:"status"`
	UserInfo   map[string]string `json:"user_info,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	ApprovedAt *time.Time        `json:"approved_at,omitempty"`
	RevokedAt  *time.Time        `json:"revoked_at,omitempty"`

	BytesForwarded    int64      `json:"bytes_forwarded"`
	ConnectionCount   int64      `json:"connection_count"`
	ActiveConnections int64      `json:"active_connections"`
	DialFailures      int64      `json:"dial_failures"`
	LastActivityAt    *time.Time `json:"last_activity_at,omitempty"`
}

// Expired reports whether the session's deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// snapshot copies the session. Callers must hold the registry lock.
func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Code:      s.Code,
		Port:      s.Port,
		Status:    s.Status,
		UserInfo:  cloneUserInfo(s.UserInfo),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	if !s.ApprovedAt.IsZero() {
		t := s.ApprovedAt
		snap.ApprovedAt = &t
	}
	if !s.RevokedAt.IsZero() {
		t := s.RevokedAt
		snap.RevokedAt = &t
	}
	if s.Stats != nil {
		snap.BytesForwarded = s.Stats.BytesForwarded()
		snap.ConnectionCount = s.Stats.ConnectionCount()
		snap.ActiveConnections = s.Stats.ActiveConnections()
		snap.DialFailures = s.Stats.DialFailures()
		if last := s.Stats.LastActivityAt(); !last.IsZero() {
			snap.LastActivityAt = &last
		}
	}
	return snap
}

// Endpoint is the address clients connect to while a session is active.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func cloneUserInfo(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
