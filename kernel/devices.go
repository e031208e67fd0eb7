package kernel

import (
	"fmt"

	"d7kernel/errors"
	"d7kernel/logging"
	"d7kernel/process"
)

// MmapPhysical maps a physical range into caller's address space,
// privileged on PrivDMA (spec §4.2 mmap_physical).
func (k *Kernel) MmapPhysical(caller process.ID, phys, virt, length uint64, prot process.Protection) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.Table.MustGet(caller)
	if err != nil {
		return err
	}
	if err := process.Require(p.Privilege, process.PrivDMA); err != nil {
		return err
	}
	if prot&^(process.ProtRead|process.ProtWrite|process.ProtExec) != 0 {
		return errors.ErrMmapInvalidFlags
	}

	rng, err := k.Table.Devices().Acquire(caller, phys, length)
	if err != nil {
		return err
	}
	ok := p.AddRegion(process.Region{
		VirtStart: virt,
		Length:    length,
		Prot:      prot,
		Kind:      process.RegionDMA,
		PhysAddr:  rng.PhysAddr,
	})
	if !ok {
		k.Table.Devices().Release(caller)
		return errors.ErrMmapInvalidFlags.WithDetail("virtual range already mapped")
	}
	return nil
}

// DMAAllocate reserves a fresh physical range for caller, privileged on
// PrivDMA (spec §4.2 dma_allocate). Fails on OOM via Process.ReserveDMA.
func (k *Kernel) DMAAllocate(caller process.ID, length uint64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.Table.MustGet(caller)
	if err != nil {
		return 0, err
	}
	if err := process.Require(p.Privilege, process.PrivDMA); err != nil {
		return 0, err
	}
	if err := p.ReserveDMA(length); err != nil {
		return 0, err
	}

	phys := k.nextPhysAddr(length)
	if _, err := k.Table.Devices().Acquire(caller, phys, length); err != nil {
		p.ReleaseDMA(length)
		return 0, err
	}
	p.OwnedDMA = append(p.OwnedDMA, phys)
	return phys, nil
}

// DMAFree releases a physical range caller owns (spec §4.2 dma_free).
func (k *Kernel) DMAFree(caller process.ID, phys, length uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.Table.MustGet(caller)
	if err != nil {
		return err
	}
	rng, ok := k.Table.Devices().Lookup(phys)
	if !ok || rng.Owner != caller {
		return errors.ErrPermission.WithDetail(fmt.Sprintf("caller does not own physical range %#x", phys))
	}

	k.Table.Devices().Release(caller)
	p.ReleaseDMA(length)
	for i, owned := range p.OwnedDMA {
		if owned == phys {
			p.OwnedDMA = append(p.OwnedDMA[:i], p.OwnedDMA[i+1:]...)
			break
		}
	}
	return nil
}

// nextPhysAddr hands out a fresh non-overlapping physical base for
// dma_allocate. Must be called with mu held. Real hardware would consult
// a physical frame allocator (spec §1 explicitly out of scope: "assumed
// available"); this stand-in just packs ranges end to end.
func (k *Kernel) nextPhysAddr(length uint64) uint64 {
	var max uint64
	for _, p := range k.Table.All() {
		for _, d := range p.OwnedDMA {
			if rng, ok := k.Table.Devices().Lookup(d); ok {
				if end := rng.PhysAddr + rng.Length; end > max {
					max = end
				}
			}
		}
	}
	if max == 0 {
		max = 0x10_0000_0000 // start DMA space comfortably above any identity-mapped low memory
	}
	return max
}

// irqHandler is the one stub installed per IRQ line: the process that
// called irq_set_handler and the trusted handler bytes it supplied.
// Running those bytes in kernel context is out of scope (spec §1:
// specific device drivers are external collaborators); FireIRQ only
// consults the registry to decide whether the line has a live owner.
type irqHandler struct {
	owner process.ID
	stub  []byte
}

// IRQSetHandler installs a trusted stub for irq, privileged on PrivIRQ
// (spec §4.2 irq_set_handler). Replaces whatever was previously
// installed for irq, mirroring real hardware where only one handler can
// own a line at a time.
func (k *Kernel) IRQSetHandler(caller process.ID, irq uint64, stub []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.Table.MustGet(caller)
	if err != nil {
		return err
	}
	if err := process.Require(p.Privilege, process.PrivIRQ); err != nil {
		return err
	}
	k.irqHandlers[irq] = irqHandler{owner: caller, stub: append([]byte(nil), stub...)}
	return nil
}

// FireIRQ is the IRQ bridge (spec §5 "IRQ semantics"): it looks up the
// handler irq_set_handler installed for irq and, if its owner is still
// alive, publishes value on the synthetic topic irq/<n>. An IRQ with no
// installed handler, or whose owner has since terminated, fires nobody
// and reports errors.ErrPermission rather than silently publishing to a
// topic nothing is listening on.
func (k *Kernel) FireIRQ(irq uint64, value []byte) error {
	k.mu.Lock()
	h, ok := k.irqHandlers[irq]
	var ownerAlive bool
	if ok {
		if owner, found := k.Table.Get(h.owner); found {
			ownerAlive = owner.IsAlive()
		}
	}
	k.mu.Unlock()

	if !ok || !ownerAlive {
		return errors.ErrPermission.WithDetail(fmt.Sprintf("no live handler installed for irq %d", irq))
	}
	return k.Bus.Publish(fmt.Sprintf("irq/%d", irq), value)
}

// DebugPrint writes to the kernel log; never fails (spec §4.2
// debug_print).
func (k *Kernel) DebugPrint(caller process.ID, msg string) {
	logging.Info(msg, "pid", caller, "source", "debug_print")
}

// KernelLogRead drains up to len(buf) bytes from the kernel log,
// privileged on PrivKernelLog (spec §4.2 kernel_log_read). Never blocks.
func (k *Kernel) KernelLogRead(caller process.ID, buf []byte) (int, error) {
	k.mu.Lock()
	p, err := k.Table.MustGet(caller)
	k.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := process.Require(p.Privilege, process.PrivKernelLog); err != nil {
		return 0, err
	}
	return logging.KernelRing().Drain(buf), nil
}
