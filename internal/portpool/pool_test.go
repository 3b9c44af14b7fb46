package portpool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateport/internal/portpool"
)

func TestAllocateAscendingFromFreshPool(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30003)

	for want := 30000; want < 30003; want++ {
		port, err := pool.Allocate()
		require.NoError(t, err)
		assert.Equal(t, want, port)
	}
}

func TestAllocateExhaustsRange(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30002)

	_, err := pool.Allocate()
	require.NoError(t, err)
	_, err = pool.Allocate()
	require.NoError(t, err)

	_, err = pool.Allocate()
	require.ErrorIs(t, err, portpool.ErrExhausted)
}

func TestRangeHighIsExclusive(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30001)
	assert.Equal(t, 1, pool.Size())

	port, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 30000, port)

	_, err = pool.Allocate()
	require.ErrorIs(t, err, portpool.ErrExhausted)
}

func TestReleaseReturnsPortToPool(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30001)

	port, err := pool.Allocate()
	require.NoError(t, err)
	require.NoError(t, pool.Release(port))

	again, err := pool.Allocate()
	require.NoError(t, err)
	assert.Equal(t, port, again)
}

func TestReleaseRejectsUnallocatedPort(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30010)

	err := pool.Release(30005)
	require.ErrorIs(t, err, portpool.ErrInvalidRelease)
}

func TestReleaseRejectsDoubleRelease(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30010)

	port, err := pool.Allocate()
	require.NoError(t, err)

	require.NoError(t, pool.Release(port))
	err = pool.Release(port)
	require.ErrorIs(t, err, portpool.ErrInvalidRelease)
}

func TestReleaseRejectsOutOfRangePort(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30010)

	err := pool.Release(29999)
	require.ErrorIs(t, err, portpool.ErrInvalidRelease)
	err = pool.Release(30010)
	require.ErrorIs(t, err, portpool.ErrInvalidRelease)
}

func TestCounters(t *testing.T) {
	t.Parallel()

	pool := portpool.New(30000, 30005)
	assert.Equal(t, 5, pool.Available())
	assert.Equal(t, 0, pool.InUse())

	a, err := pool.Allocate()
	require.NoError(t, err)
	b, err := pool.Allocate()
	require.NoError(t, err)

	assert.Equal(t, 3, pool.Available())
	assert.Equal(t, 2, pool.InUse())
	assert.Equal(t, []int{a, b}, pool.UsedPorts())

	require.NoError(t, pool.Release(a))
	assert.Equal(t, 4, pool.Available())
	assert.Equal(t, []int{b}, pool.UsedPorts())
}

func TestConcurrentAllocateRelease(t *testing.T) {
	t.Parallel()

	const workers = 50
	pool := portpool.New(30000, 30000+workers)

	var wg sync.WaitGroup
	ports := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := pool.Allocate()
			if err != nil {
				return
			}
			ports <- port
		}()
	}
	wg.Wait()
	close(ports)

	seen := make(map[int]bool)
	for port := range ports {
		assert.False(t, seen[port], "port %d allocated twice", port)
		seen[port] = true
		require.NoError(t, pool.Release(port))
	}

	assert.Len(t, seen, workers)
	assert.Equal(t, workers, pool.Available())
	assert.Equal(t, 0, pool.InUse())
}
