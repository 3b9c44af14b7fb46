// Package backend watches the protected service with periodic TCP probes so
// the API can report whether forwarded clients have anything to reach.
package backend

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// Status is the result of the most recent probe.
type Status struct {
	Reachable bool      `json:"reachable"`
	Addr      string    `json:"addr"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Prober dials the backend on a fixed interval and keeps the latest status.
// A probe failure never affects sessions; the gateway keeps relaying and
// individual dial failures surface per connection.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	status Status

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProber(addr string, interval, timeout time.Duration) *Prober {
	return &Prober{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		status:   Status{Addr: addr},
	}
}

// Start probes once immediately, then keeps probing until Stop.
func (p *Prober) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.probe()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.probe()
			}
		}
	}()
}

func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Status returns the latest probe result.
func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Prober) probe() {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
	latency := time.Since(start)

	next := Status{
		Addr:      p.addr,
		CheckedAt: time.Now(),
		LatencyMS: latency.Milliseconds(),
	}
	if err != nil {
		next.Reachable = false
		next.LastError = err.Error()
	} else {
		conn.Close()
		next.Reachable = true
	}

	p.mu.Lock()
	changed := p.status.Reachable != next.Reachable || p.status.CheckedAt.IsZero()
	p.status = next
	p.mu.Unlock()

	// Log transitions only; a healthy backend probed every few seconds
	// would otherwise drown the log.
	if changed {
		if next.Reachable {
			log.Printf("✅ Backend %s reachable (%dms)", p.addr, next.LatencyMS)
		} else {
			log.Printf("❌ Backend %s unreachable: %s", p.addr, next.LastError)
		}
	}
}
