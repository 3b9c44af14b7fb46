package api

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"gateport/internal/backend"
	"gateport/internal/broker"
	"gateport/internal/config"
	"gateport/internal/constants"
)

// Server is the control-plane HTTP API. Data-plane traffic never touches it;
// relayed bytes flow over the per-session forwarding ports.
type Server struct {
	cfg       *config.Config
	broker    *broker.Broker
	prober    *backend.Prober
	hub       *Hub
	startTime time.Time
}

// NewServer wires the API onto a broker. prober may be nil when backend
// probing is disabled.
func NewServer(cfg *config.Config, b *broker.Broker, prober *backend.Prober) *Server {
	s := &Server{
		cfg:       cfg,
		broker:    b,
		prober:    prober,
		hub:       NewHub(b.ListSessions),
		startTime: time.Now(),
	}
	b.OnEvent(s.hub.Publish)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+constants.EndpointSessions, s.handleCreateSession)
	mux.HandleFunc("GET "+constants.EndpointSessions, s.handleListSessions)
	mux.HandleFunc("POST "+constants.EndpointSessions+"/prune", s.handlePrune)
	mux.HandleFunc("GET "+constants.EndpointSessions+"/{code}", s.handleGetSession)
	mux.HandleFunc("POST "+constants.EndpointSessions+"/{code}/approve", s.handleApproveSession)
	mux.HandleFunc("POST "+constants.EndpointSessions+"/{code}/revoke", s.handleRevokeSession)
	mux.HandleFunc("POST "+constants.EndpointSessions+"/{code}/forward", s.handleStartForwarding)
	mux.HandleFunc("GET "+constants.EndpointSessions+"/{code}/endpoint", s.handleEndpoint)
	mux.HandleFunc("GET "+constants.EndpointSessions+"/{code}/qr", s.handleQR)
	mux.HandleFunc("POST "+constants.EndpointQuickJoin, s.handleQuickJoin)
	mux.HandleFunc("GET "+constants.EndpointStats, s.handleStats)
	mux.HandleFunc("GET "+constants.EndpointBackendStatus, s.handleBackendStatus)
	mux.HandleFunc("GET "+constants.EndpointEvents, s.hub.HandleWS)
	mux.HandleFunc("GET "+constants.EndpointHealthz, s.handleHealthz)

	var handler http.Handler = mux
	handler = SecurityHeaders(handler)
	handler = CorsMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	return handler
}

// Close stops the event hub. Run calls it on shutdown; tests that serve
// Handler() directly call it themselves.
func (s *Server) Close() {
	s.hub.Close()
}

// Run serves the API until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Run() {
	handler := s.Handler()

	useTLS := false
	if s.cfg.EnableTLS {
		if _, err := os.Stat(s.cfg.CertFile); err == nil {
			if _, err := os.Stat(s.cfg.KeyFile); err == nil {
				useTLS = true
			}
		}

		if !useTLS {
			log.Printf("⚠️ TLS enabled but certs not found at %s", s.cfg.CertFile)
		}
	}

	var h2Handler http.Handler
	if useTLS {
		h2Handler = handler
	} else {
		h2Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.APIAddr(),
		Handler:           h2Handler,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if useTLS {
		log.Printf("🔒 HTTPS enabled (HTTP/2)")
		go func() {
			if err := server.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server error: %v", err)
			}
		}()
	} else {
		log.Printf("🌐 HTTP mode (HTTP/2 enabled)")
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	log.Printf("🚀 API listening on %s", s.cfg.APIAddr())

	<-sigChan
	log.Println("🛑 Shutting down API...")

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("API forced to shutdown: %v", err)
	}

	s.hub.Close()
	log.Println("✅ API stopped")
}
