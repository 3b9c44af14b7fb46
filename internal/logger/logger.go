// Package logger writes one JSONL relay log per session, recording every
// client connection relayed through the session's port.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	ConnID     string    `json:"conn_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Port       int       `json:"port,omitempty"`
	BytesIn    int64     `json:"bytes_in,omitempty"`
	BytesOut   int64     `json:"bytes_out,omitempty"`
	Error      string    `json:"error,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Logger appends entries to <dir>/<code>.log. A nil Logger discards
// everything, so callers never need to guard their log calls.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	code string
}

func New(dir, code string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.log", code))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		file: file,
		enc:  json.NewEncoder(file),
		code: code,
	}, nil
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = time.Now()
	l.enc.Encode(entry)
}

// LogOpen records an accepted client connection.
func (l *Logger) LogOpen(connID, remoteAddr string, port int) {
	l.Log(Entry{
		Type:       "open",
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Port:       port,
	})
}

// LogClose records a finished relay with the bytes moved in each direction.
func (l *Logger) LogClose(connID, remoteAddr string, port int, bytesIn, bytesOut int64) {
	l.Log(Entry{
		Type:       "close",
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Port:       port,
		BytesIn:    bytesIn,
		BytesOut:   bytesOut,
	})
}

// LogDialFailure records a client that was dropped because the backend could
// not be reached.
func (l *Logger) LogDialFailure(connID, remoteAddr string, port int, err error) {
	entry := Entry{
		Type:       "dial_failure",
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Port:       port,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	l.Log(entry)
}

// LogEvent records a session lifecycle message.
func (l *Logger) LogEvent(message string, port int) {
	l.Log(Entry{
		Type:    "event",
		Message: message,
		Port:    port,
	})
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

func (l *Logger) Code() string {
	if l == nil {
		return ""
	}
	return l.code
}
