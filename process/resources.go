package process

import (
	"fmt"

	"d7kernel/errors"
)

// Limits bounds a process's footprint, adapted from the teacher's cgroup
// memory/pids controller into the two resources the spec gives a process:
// heap bytes (mem_set_size) and DMA bytes (dma_allocate). Zero means
// unlimited.
type Limits struct {
	MaxMemoryBytes uint64
	MaxDMABytes    uint64
}

// Usage tracks what a process currently holds against its Limits.
type Usage struct {
	MemoryBytes uint64
	DMABytes    uint64
}

// oom builds the "fails on OOM" error mem_set_size and dma_allocate both
// specify (spec §3); the taxonomy has no dedicated resource-exhaustion
// code, so it is reported as Unknown with an operation-specific detail.
func oom(op string, want, limit uint64) error {
	return errors.New(op, errors.Unknown).
		WithDetail(fmt.Sprintf("requested %d bytes exceeds limit %d", want, limit))
}

// ReserveMemory grows the process's accounted heap usage to newSize,
// rejecting the request if it would exceed Limits.MaxMemoryBytes. Shrinking
// (newSize < current usage) always succeeds.
func (p *Process) ReserveMemory(newSize uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Limits.MaxMemoryBytes != 0 && newSize > p.Limits.MaxMemoryBytes {
		return oom("mem_set_size", newSize, p.Limits.MaxMemoryBytes)
	}
	p.used.MemoryBytes = newSize
	return nil
}

// ReserveDMA accounts len additional DMA bytes against the process's
// budget, rejecting the request if it would exceed Limits.MaxDMABytes.
func (p *Process) ReserveDMA(length uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := p.used.DMABytes + length
	if p.Limits.MaxDMABytes != 0 && want > p.Limits.MaxDMABytes {
		return oom("dma_allocate", want, p.Limits.MaxDMABytes)
	}
	p.used.DMABytes = want
	return nil
}

// ReleaseDMA gives back length DMA bytes, e.g. when an owning process is
// reaped and its allocations are released (spec §5 resource-release
// invariant).
func (p *Process) ReleaseDMA(length uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if length > p.used.DMABytes {
		p.used.DMABytes = 0
		return
	}
	p.used.DMABytes -= length
}

// CurrentUsage returns a snapshot of the process's current resource accounting.
func (p *Process) CurrentUsage() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}
