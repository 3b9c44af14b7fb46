// Package forward runs the per-session relay: one listener on the session's
// reserved port, two copy loops per accepted client, everything byte
// transparent. The gateway never parses what it relays.
package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"gateport/internal/logger"
	"gateport/internal/session"
)

// ErrBindFailure means the listener could not claim its allocated port, most
// likely because something outside the gateway grabbed it.
var ErrBindFailure = errors.New("could not bind forwarding port")

// Config describes one forwarder. Port 0 binds an OS-chosen port, which
// Port() reports after Start.
type Config struct {
	Code        string
	Port        int
	BackendAddr string
	DialTimeout time.Duration

	// MaxConns caps concurrent relayed clients; 0 means no cap.
	MaxConns int
}

// Forwarder accepts clients on one port and relays them to the backend. It
// owns its relay log and closes it on Stop.
type Forwarder struct {
	cfg   Config
	stats *session.Stats
	log   *logger.Logger

	// OnDialFailure, if set before Start, is called for every failed
	// backend dial after the counter is bumped.
	OnDialFailure func(err error)

	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	port     int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func New(cfg Config, stats *session.Stats, relayLog *logger.Logger) *Forwarder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Forwarder{
		cfg:    cfg,
		stats:  stats,
		log:    relayLog,
		ctx:    ctx,
		cancel: cancel,
		port:   cfg.Port,
	}
}

// Start binds the listener and launches the accept loop. A bind error is
// returned to the caller; nothing keeps running after a failed Start.
func (f *Forwarder) Start() error {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(f.ctx, "tcp", fmt.Sprintf(":%d", f.cfg.Port))
	if err != nil {
		return fmt.Errorf("%w: port %d: %v", ErrBindFailure, f.cfg.Port, err)
	}
	f.listener = ln
	f.port = ln.Addr().(*net.TCPAddr).Port

	f.wg.Add(1)
	go f.acceptLoop()

	log.Printf("🔌 Forwarding port %d -> %s (session %s)", f.port, f.cfg.BackendAddr, f.cfg.Code)
	f.log.LogEvent("forwarding started", f.port)
	return nil
}

// Stop closes the listener, which unblocks the accept loop, and waits for it
// to exit: no new client is accepted once Stop returns. Connections already
// relaying keep going until their sockets close on their own.
func (f *Forwarder) Stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		if f.listener != nil {
			f.listener.Close()
		}
		f.wg.Wait()

		log.Printf("🛑 Forwarding stopped on port %d (session %s)", f.port, f.cfg.Code)
		f.log.LogEvent("forwarding stopped", f.port)
		f.log.Close()
	})
}

// Port returns the bound port. Valid after a successful Start.
func (f *Forwarder) Port() int {
	return f.port
}

func (f *Forwarder) acceptLoop() {
	defer f.wg.Done()

	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || f.ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ Accept error on port %d: %v", f.port, err)
			continue
		}

		if f.cfg.MaxConns > 0 && f.stats.ActiveConnections() >= int64(f.cfg.MaxConns) {
			log.Printf("⛔ Session %s at connection limit (%d), dropping %s", f.cfg.Code, f.cfg.MaxConns, conn.RemoteAddr())
			f.log.LogEvent(fmt.Sprintf("connection from %s dropped: limit %d reached", conn.RemoteAddr(), f.cfg.MaxConns), f.port)
			conn.Close()
			continue
		}

		go f.handleConn(conn)
	}
}

func (f *Forwarder) handleConn(client net.Conn) {
	connID := uuid.New().String()
	remote := client.RemoteAddr().String()

	f.stats.ConnOpened()
	defer f.stats.ConnClosed()
	f.log.LogOpen(connID, remote, f.port)

	dialCtx, cancelDial := context.WithTimeout(f.ctx, f.cfg.DialTimeout)
	defer cancelDial()

	var dialer net.Dialer
	backend, err := dialer.DialContext(dialCtx, "tcp", f.cfg.BackendAddr)
	if err != nil {
		// The backend may recover, so the session stays up; only this
		// client is dropped.
		f.stats.DialFailed()
		f.log.LogDialFailure(connID, remote, f.port, err)
		log.Printf("❌ Backend dial failed for session %s: %v", f.cfg.Code, err)
		if f.OnDialFailure != nil {
			f.OnDialFailure(err)
		}
		client.Close()
		return
	}

	if tc, ok := client.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	if tc, ok := backend.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	buf1 := GetBuffer()
	buf2 := GetBuffer()
	defer PutBuffer(buf1)
	defer PutBuffer(buf2)

	var toBackend, toClient int64
	errChan := make(chan error, 2)

	go func() {
		n, err := io.CopyBuffer(backend, newMeterReader(client, f.stats), buf1)
		toBackend = n
		if tc, ok := backend.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errChan <- err
	}()

	go func() {
		n, err := io.CopyBuffer(client, newMeterReader(backend, f.stats), buf2)
		toClient = n
		if tc, ok := client.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errChan <- err
	}()

	// Whichever direction finishes first closes both sockets, which
	// unblocks the other copy loop. Transport errors end here; they are
	// never the gateway's failure.
	<-errChan
	client.Close()
	backend.Close()
	<-errChan

	f.log.LogClose(connID, remote, f.port, toBackend, toClient)
}
