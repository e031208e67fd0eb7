package process

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"d7kernel/errors"
)

// DMARange is a physical address range owned exclusively by one process,
// the kernel-side bookkeeping behind mmap_physical/dma_allocate. Real
// hardware backs this with a page-table mapping to physical memory; this
// package backs it with an anonymous unix.Mmap region so the range has
// real, accessible bytes during tests and local runs, the same
// "exclusive ownership + whitelist" shape the teacher's device allowlist
// enforces for /dev nodes.
type DMARange struct {
	PhysAddr uint64
	Length   uint64
	Owner    ID
	mem      []byte
}

// DeviceRegistry tracks which physical ranges are currently owned, so a
// second process cannot mmap_physical over memory another process already
// owns (spec §5: "device MMIO mapped into a user process is owned
// exclusively by that process").
type DeviceRegistry struct {
	mu     sync.Mutex
	ranges []DMARange
}

// NewDeviceRegistry creates an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{}
}

// Acquire reserves [phys, phys+length) for owner, failing if it overlaps
// an existing allocation. On success it mmaps anonymous, page-aligned
// memory to stand in for the physical range's backing store.
func (d *DeviceRegistry) Acquire(owner ID, phys, length uint64) (*DMARange, error) {
	if length == 0 {
		return nil, errors.ErrEmptyListArgument.WithDetail("dma_allocate length must be non-zero")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	end := phys + length
	for _, r := range d.ranges {
		if phys < r.PhysAddr+r.Length && r.PhysAddr < end {
			return nil, errors.ErrPermission.WithDetail(
				fmt.Sprintf("physical range %#x-%#x already owned by pid %d", r.PhysAddr, r.PhysAddr+r.Length, r.Owner))
		}
	}

	mem, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "dma_allocate", errors.Unknown)
	}

	rng := DMARange{PhysAddr: phys, Length: length, Owner: owner, mem: mem}
	d.ranges = append(d.ranges, rng)
	return &d.ranges[len(d.ranges)-1], nil
}

// Release unmaps and frees every range owned by owner, the cleanup a
// zombie transition triggers for DMA allocations (spec §5).
func (d *DeviceRegistry) Release(owner ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.ranges[:0]
	for _, r := range d.ranges {
		if r.Owner == owner {
			unix.Munmap(r.mem)
			continue
		}
		kept = append(kept, r)
	}
	d.ranges = kept
}

// Lookup returns the range owning phys, if any.
func (d *DeviceRegistry) Lookup(phys uint64) (DMARange, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.ranges {
		if phys >= r.PhysAddr && phys < r.PhysAddr+r.Length {
			return r, true
		}
	}
	return DMARange{}, false
}
