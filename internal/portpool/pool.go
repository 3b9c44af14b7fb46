// Package portpool hands out forwarding ports from a fixed half-open range
// and takes them back when sessions end.
package portpool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrExhausted is returned by Allocate when every port in the range is
	// in use.
	ErrExhausted = errors.New("portpool: no ports available")

	// ErrInvalidRelease is returned by Release for a port that is outside
	// the range or not currently allocated.
	ErrInvalidRelease = errors.New("portpool: port not allocated")
)

// Allocator tracks which ports of a half-open range [low, high) are in use.
// All methods are safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	low  int
	high int
	free []int
	used map[int]bool
}

// New builds an allocator over [low, high). The range must be non-empty and
// within the valid TCP port space; config validation enforces that before
// the allocator is built.
func New(low, high int) *Allocator {
	a := &Allocator{
		low:  low,
		high: high,
		free: make([]int, 0, high-low),
		used: make(map[int]bool, high-low),
	}
	// Stacked in descending order so a fresh pool allocates ascending.
	for port := high - 1; port >= low; port-- {
		a.free = append(a.free, port)
	}
	return a
}

// Allocate reserves a port and returns it. Released ports are reused
// most-recently-freed first.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		return 0, ErrExhausted
	}
	port := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.used[port] = true
	return port, nil
}

// Release returns a previously allocated port to the pool.
func (a *Allocator) Release(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if port < a.low || port >= a.high {
		return fmt.Errorf("%w: %d out of range [%d, %d)", ErrInvalidRelease, port, a.low, a.high)
	}
	if !a.used[port] {
		return fmt.Errorf("%w: %d", ErrInvalidRelease, port)
	}
	delete(a.used, port)
	a.free = append(a.free, port)
	return nil
}

// Available reports how many ports are free.
func (a *Allocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// InUse reports how many ports are allocated.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.used)
}

// UsedPorts returns the allocated ports in ascending order.
func (a *Allocator) UsedPorts() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	ports := make([]int, 0, len(a.used))
	for port := range a.used {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// Size returns the total number of ports in the range.
func (a *Allocator) Size() int {
	return a.high - a.low
}
