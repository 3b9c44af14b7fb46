package backend_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateport/internal/backend"
)

func TestProberReportsReachableBackend(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := backend.NewProber(ln.Addr().String(), time.Hour, time.Second)
	p.Start()
	defer p.Stop()

	st := p.Status()
	assert.True(t, st.Reachable)
	assert.Equal(t, ln.Addr().String(), st.Addr)
	assert.Empty(t, st.LastError)
	assert.False(t, st.CheckedAt.IsZero())
}

func TestProberReportsUnreachableBackend(t *testing.T) {
	t.Parallel()

	// A port with nothing behind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := backend.NewProber(deadAddr, time.Hour, 500*time.Millisecond)
	p.Start()
	defer p.Stop()

	st := p.Status()
	assert.False(t, st.Reachable)
	assert.NotEmpty(t, st.LastError)
}

func TestProberRecoversWhenBackendReturns(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := backend.NewProber(addr, 50*time.Millisecond, 500*time.Millisecond)
	p.Start()
	defer p.Stop()

	require.False(t, p.Status().Reachable)

	// Bring the backend up on the same port.
	ln2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer ln2.Close()
	go func() {
		for {
			conn, err := ln2.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	assert.Eventually(t, func() bool {
		return p.Status().Reachable
	}, 3*time.Second, 50*time.Millisecond)
}
