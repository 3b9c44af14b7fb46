// Package types holds the JSON shapes shared between the API server and the
// gatectl client.
package types

import "gateport/internal/session"

type CreateSessionRequest struct {
	UserInfo   map[string]string `json:"user_info,omitempty"`
	TTLSeconds int               `json:"ttl_seconds,omitempty"`
}

type SessionList struct {
	Sessions []session.Snapshot `json:"sessions"`
	Count    int                `json:"count"`
}

type EndpointResponse struct {
	Code             string `json:"code"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	ConnectionString string `json:"connection_string"`
}

type QRResponse struct {
	Code             string `json:"code"`
	ConnectionString string `json:"connection_string"`
	QRCode           string `json:"qr_code"` // PNG as a base64 data URI
}

type StatsResponse struct {
	ActiveSessions     int   `json:"active_sessions"`
	TotalSessions      int   `json:"total_sessions"`
	FreePorts          int   `json:"free_ports"`
	UsedPorts          int   `json:"used_ports"`
	BytesForwarded     int64 `json:"bytes_forwarded"`
	RelayedConnections int64 `json:"relayed_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	DialFailures       int64 `json:"dial_failures"`
	UptimeSeconds      int64 `json:"uptime_seconds"`
}

type PruneResponse struct {
	Pruned int      `json:"pruned"`
	Codes  []string `json:"codes,omitempty"`
}

// QuickJoinResponse carries everything a player needs after a one-step join:
// the approved session plus the address to point the client at.
type QuickJoinResponse struct {
	Session  session.Snapshot `json:"session"`
	Endpoint EndpointResponse `json:"endpoint"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WSMessage is one frame on the event feed. The first frame after a
// subscribe is a session_list carrying the current sessions; every later
// frame carries the single session a transition touched.
type WSMessage struct {
	Type     string             `json:"type"`
	Session  *session.Snapshot  `json:"session,omitempty"`
	Sessions []session.Snapshot `json:"sessions,omitempty"`
}
