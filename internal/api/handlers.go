package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"gateport/internal/constants"
	"gateport/internal/forward"
	"gateport/internal/portpool"
	"gateport/internal/session"
	"gateport/internal/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// statusFor maps broker errors onto HTTP statuses. Unknown errors stay 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, portpool.ErrExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, forward.ErrBindFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)

	// An empty body is a valid request: defaults all the way down.
	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.TTLSeconds < 0 {
		writeError(w, http.StatusBadRequest, "ttl_seconds must not be negative")
		return
	}

	snap, err := s.broker.CreateSession(req.UserInfo, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.broker.ListSessions()
	writeJSON(w, http.StatusOK, types.SessionList{Sessions: sessions, Count: len(sessions)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	snap, ok := s.broker.GetSession(code)
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleApproveSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	snap, err := s.broker.ApproveSession(code)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	if err := s.broker.RevokeSession(code); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	snap, ok := s.broker.GetSession(code)
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStartForwarding(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	if err := s.broker.StartForwarding(code); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	snap, ok := s.broker.GetSession(code)
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// endpointFor gates the connection endpoint: 404 for unknown codes, 409 for
// sessions that exist but are not active.
func (s *Server) endpointFor(w http.ResponseWriter, code string) (types.EndpointResponse, bool) {
	ep, ok := s.broker.ConnectionEndpoint(code)
	if !ok {
		if _, exists := s.broker.GetSession(code); exists {
			writeError(w, http.StatusConflict, "session not active")
		} else {
			writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		}
		return types.EndpointResponse{}, false
	}

	return types.EndpointResponse{
		Code:             code,
		Host:             ep.Host,
		Port:             ep.Port,
		ConnectionString: net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)),
	}, true
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.endpointFor(w, r.PathValue("code"))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.endpointFor(w, r.PathValue("code"))
	if !ok {
		return
	}

	png, err := qrcode.Encode(resp.ConnectionString, qrcode.Medium, constants.QRImageSize)
	if err != nil {
		log.Printf("⚠️ QR encode failed for %s: %v", resp.Code, err)
		writeError(w, http.StatusInternalServerError, "QR encoding failed")
		return
	}

	writeJSON(w, http.StatusOK, types.QRResponse{
		Code:             resp.Code,
		ConnectionString: resp.ConnectionString,
		QRCode:           "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

// handleQuickJoin collapses create+approve into one call for callers that
// run the gateway with approval required but trust their own requests.
func (s *Server) handleQuickJoin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)

	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.TTLSeconds < 0 {
		writeError(w, http.StatusBadRequest, "ttl_seconds must not be negative")
		return
	}

	snap, err := s.broker.CreateSession(req.UserInfo, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if snap.Status == session.StatusPending {
		snap, err = s.broker.ApproveSession(snap.Code)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	}

	ep, ok := s.broker.ConnectionEndpoint(snap.Code)
	if !ok {
		writeError(w, http.StatusInternalServerError, "session activated but endpoint missing")
		return
	}

	writeJSON(w, http.StatusCreated, types.QuickJoinResponse{
		Session: snap,
		Endpoint: types.EndpointResponse{
			Code:             snap.Code,
			Host:             ep.Host,
			Port:             ep.Port,
			ConnectionString: net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)),
		},
	})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	removed := s.broker.PruneSessions()

	codes := make([]string, 0, len(removed))
	for _, snap := range removed {
		codes = append(codes, snap.Code)
	}

	writeJSON(w, http.StatusOK, types.PruneResponse{Pruned: len(removed), Codes: codes})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary := s.broker.Stats()

	var bytesForwarded, relayed, active, dialFailures int64
	for _, snap := range s.broker.ListSessions() {
		bytesForwarded += snap.BytesForwarded
		relayed += snap.ConnectionCount
		active += snap.ActiveConnections
		dialFailures += snap.DialFailures
	}

	writeJSON(w, http.StatusOK, types.StatsResponse{
		ActiveSessions:     summary.ActiveSessions,
		TotalSessions:      summary.TotalSessions,
		FreePorts:          summary.FreePorts,
		UsedPorts:          summary.UsedPorts,
		BytesForwarded:     bytesForwarded,
		RelayedConnections: relayed,
		ActiveConnections:  active,
		DialFailures:       dialFailures,
		UptimeSeconds:      int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeError(w, http.StatusServiceUnavailable, "backend probing disabled")
		return
	}

	writeJSON(w, http.StatusOK, s.prober.Status())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}
