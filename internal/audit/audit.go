// Package audit keeps an append-only JSONL trail of session lifecycle
// transitions, one dated file per day.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gateport/internal/constants"
)

type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Code      string    `json:"code,omitempty"`
	Port      int       `json:"port,omitempty"`
	Details   string    `json:"details"`
	Severity  string    `json:"severity"`
}

// Logger writes audit events to <dir>/audit-YYYY-MM-DD.log. Entries are
// capped per minute and paused when the disk runs low, so a misbehaving
// caller cannot fill the volume. A nil Logger discards everything.
type Logger struct {
	mu          sync.Mutex
	dir         string
	file        *os.File
	enc         *json.Encoder
	logCount    int
	windowStart time.Time
}

func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &Logger{
		dir:         dir,
		file:        file,
		enc:         json.NewEncoder(file),
		windowStart: time.Now(),
	}, nil
}

func (a *Logger) Log(event Event) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.windowStart) > time.Minute {
		a.windowStart = now
		a.logCount = 0
	}
	if a.logCount >= constants.MaxAuditLogsPerMinute {
		return
	}
	if !a.hasEnoughDiskSpace() {
		return
	}
	a.logCount++

	event.ID = uuid.New().String()
	event.Timestamp = now
	a.enc.Encode(event)
}

func (a *Logger) LogCreated(code string, port int, ttl time.Duration) {
	a.Log(Event{
		EventType: "session_created",
		Code:      code,
		Port:      port,
		Details:   fmt.Sprintf("Session created on port %d, expires in %s", port, ttl),
		Severity:  "info",
	})
}

func (a *Logger) LogApproved(code string, port int) {
	a.Log(Event{
		EventType: "session_approved",
		Code:      code,
		Port:      port,
		Details:   "Session approved, forwarding started",
		Severity:  "info",
	})
}

func (a *Logger) LogRevoked(code string, port int) {
	a.Log(Event{
		EventType: "session_revoked",
		Code:      code,
		Port:      port,
		Details:   "Session revoked, port released",
		Severity:  "info",
	})
}

func (a *Logger) LogExpired(code string, port int) {
	a.Log(Event{
		EventType: "session_expired",
		Code:      code,
		Port:      port,
		Details:   "Session lifetime elapsed, port released",
		Severity:  "info",
	})
}

func (a *Logger) LogPruned(code string) {
	a.Log(Event{
		EventType: "session_pruned",
		Code:      code,
		Details:   "Terminal session removed from registry",
		Severity:  "info",
	})
}

func (a *Logger) LogBindFailure(code string, port int, reason string) {
	a.Log(Event{
		EventType: "bind_failure",
		Code:      code,
		Port:      port,
		Details:   fmt.Sprintf("Listener could not claim port %d: %s", port, reason),
		Severity:  "warning",
	})
}

func (a *Logger) LogBackendUnreachable(code string, port int, reason string) {
	a.Log(Event{
		EventType: "backend_unreachable",
		Code:      code,
		Port:      port,
		Details:   fmt.Sprintf("Backend dial failed: %s", reason),
		Severity:  "warning",
	})
}

func (a *Logger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
