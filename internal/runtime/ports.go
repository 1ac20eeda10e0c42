package runtime

import (
	"fmt"
	"net"
	"sync"
)

// Host port range reserved for service instances. The range bounds how
// many instances one host can run, which is far below the port count in
// practice because each instance holds a GPU or a large slice of RAM.
const (
	PortRangeStart = 18000
	PortRangeEnd   = 18999
)

// PortAllocator hands out host ports for instance port bindings.
//
// Allocation state lives in memory and is rebuilt on daemon start:
// LoadExistingContainers calls MarkUsed for every port a surviving
// container already binds. A port is only handed out after a successful
// test bind, so ports taken by unrelated processes are skipped.
type PortAllocator struct {
	mu    sync.Mutex
	used  map[int]bool
	start int
	end   int
}

// NewPortAllocator creates an allocator over the instance port range.
func NewPortAllocator() *PortAllocator {
	return &PortAllocator{
		used:  make(map[int]bool),
		start: PortRangeStart,
		end:   PortRangeEnd,
	}
}

var (
	globalPortAllocator     *PortAllocator
	globalPortAllocatorOnce sync.Once
)

// GetGlobalPortAllocator returns the process-wide port allocator shared
// by all runtimes.
func GetGlobalPortAllocator() *PortAllocator {
	globalPortAllocatorOnce.Do(func() {
		globalPortAllocator = NewPortAllocator()
	})
	return globalPortAllocator
}

// Allocate reserves and returns a free port from the range.
//
// Returns:
//   - A port that passed a test bind at the time of allocation
//   - Error when the range is exhausted
func (p *PortAllocator) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.start; port <= p.end; port++ {
		if p.used[port] {
			continue
		}
		if !portBindable(port) {
			// Taken by something outside our bookkeeping; skip but do
			// not mark, it may free up later.
			continue
		}
		p.used[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", p.start, p.end)
}

// Release returns a port to the pool. Releasing an unallocated port is a
// no-op.
func (p *PortAllocator) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.used, port)
}

// MarkUsed records a port as taken without allocating it. Used when
// reloading containers that already hold a binding.
func (p *PortAllocator) MarkUsed(port int) {
	if port < p.start || port > p.end {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used[port] = true
}

// IsUsed reports whether the allocator considers the port taken.
func (p *PortAllocator) IsUsed(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used[port]
}

// portBindable test-binds the port on all interfaces and releases it
// immediately. Docker binds instance ports on 0.0.0.0, so that is what
// gets probed.
func portBindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
