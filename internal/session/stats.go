package session

import (
	"sync/atomic"
	"time"
)

// Stats tracks per-session traffic. Counters are updated from concurrent
// relay goroutines, so every field is atomic.
type Stats struct {
	bytesForwarded  atomic.Int64
	connectionCount atomic.Int64
	activeConns     atomic.Int64
	dialFailures    atomic.Int64
	lastActivity    atomic.Int64 // unix nanoseconds, 0 until first activity
}

func NewStats() *Stats {
	return &Stats{}
}

// AddBytes records n relayed bytes and refreshes the activity timestamp.
func (s *Stats) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	s.bytesForwarded.Add(n)
	s.Touch()
}

// ConnOpened records one accepted client connection.
func (s *Stats) ConnOpened() {
	s.connectionCount.Add(1)
	s.activeConns.Add(1)
	s.Touch()
}

// ConnClosed marks one client connection as finished.
func (s *Stats) ConnClosed() {
	s.activeConns.Add(-1)
}

// DialFailed records one failed backend dial.
func (s *Stats) DialFailed() {
	s.dialFailures.Add(1)
}

// Touch refreshes the last-activity timestamp to now.
func (s *Stats) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Stats) BytesForwarded() int64    { return s.bytesForwarded.Load() }
func (s *Stats) ConnectionCount() int64   { return s.connectionCount.Load() }
func (s *Stats) ActiveConnections() int64 { return s.activeConns.Load() }
func (s *Stats) DialFailures() int64      { return s.dialFailures.Load() }

// LastActivityAt returns the time of the most recent traffic, or the zero
// time if the session never saw any.
func (s *Stats) LastActivityAt() time.Time {
	ns := s.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
