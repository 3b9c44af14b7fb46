package constants

import "time"

const Version = "0.1.0"

// Network defaults
const (
	MinPort         = 1
	MaxPort         = 65535
	CopyBufferSize  = 262144 // 256KB for io.Copy operations
	DialTimeout     = 10 * time.Second
	CleanupInterval = 30 * time.Second
)

// Session settings
const (
	SessionDuration    = time.Hour
	MinSessionDuration = time.Second
	MaxSessionDuration = 24 * time.Hour
	CodeMaxAttempts    = 100
	DefaultCodeLength  = 8
	DefaultAlphabet    = "0123456789ABCDEF"
)

// API endpoints
const (
	EndpointSessions      = "/api/sessions"
	EndpointQuickJoin     = "/api/quick-join"
	EndpointStats         = "/api/stats"
	EndpointBackendStatus = "/api/backend/status"
	EndpointEvents        = "/api/events"
	EndpointHealthz       = "/api/healthz"
)

// API limits
const (
	MaxRequestBodySize = 64 * 1024 // session payloads are tiny
	EventWriteTimeout  = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
	QRImageSize        = 256
)

// Audit settings
const (
	MaxAuditLogsPerMinute = 1000
	MinDiskSpaceRequired  = 100 * 1024 * 1024 // stop audit writes below 100MB free
)

// Storage
const (
	RedisKeyPrefix = "gateport:session:"
)

// Time formats
const (
	TimeFormatShort = "15:04:05"
	TimeFormatLong  = "2006-01-02 15:04:05"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
)
