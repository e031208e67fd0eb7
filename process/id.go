// Package process owns the process table: per-process address space,
// register state, lifecycle status, and the resources (memory regions,
// DMA allocations, IRQ slots, owned subscriptions) that must be released
// when a process becomes a zombie.
package process

import "sync/atomic"

// ID is an opaque process identifier, monotonically issued and never
// reused within a boot.
type ID uint64

// idGenerator issues monotonically increasing process ids starting at 1,
// so 0 can be reserved as "no process" (e.g. a parentless init process).
type idGenerator struct {
	next uint64
}

func newIDGenerator() *idGenerator {
	return &idGenerator{next: 1}
}

func (g *idGenerator) allocate() ID {
	return ID(atomic.AddUint64(&g.next, 1) - 1)
}
