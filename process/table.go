package process

import (
	"d7kernel/errors"
)

// Table is the kernel's process table: every live and zombie process,
// keyed by ID. Callers are expected to hold the kernel's single mutex
// while calling Table methods (spec §5); Table itself adds no further
// locking beyond what bookkeeping collections like Devices need
// internally.
type Table struct {
	ids     *idGenerator
	procs   map[ID]*Process
	devices *DeviceRegistry
	notify  Notifier
}

// NewTable creates an empty process table. notify may be nil, in which
// case lifecycle events are silently dropped (useful in unit tests that
// do not care about notifications).
func NewTable(notify Notifier) *Table {
	return &Table{
		ids:     newIDGenerator(),
		procs:   make(map[ID]*Process),
		devices: NewDeviceRegistry(),
		notify:  notify,
	}
}

// Devices exposes the shared DMA/MMIO ownership registry so syscall
// dispatch can route mmap_physical/dma_allocate through it.
func (t *Table) Devices() *DeviceRegistry {
	return t.devices
}

// Create allocates a PID, builds a Process from image, and inserts it
// into the table as Ready. parent, hasParent record the spawning process
// for later notification; the root/init process has hasParent == false.
func (t *Table) Create(image Image, parent ID, hasParent bool, privilege Privilege) *Process {
	p := New(image, image.Limits)
	p.PID = t.ids.allocate()
	p.ParentID = parent
	p.HasParent = hasParent
	p.Privilege = Inherit(privilege, image.Requested)
	t.procs[p.PID] = p

	notifyLifecycle(t.notify, Event{Kind: EventSpawned, PID: p.PID, Parent: parent})
	return p
}

// Get looks up a process by id.
func (t *Table) Get(pid ID) (*Process, bool) {
	p, ok := t.procs[pid]
	return p, ok
}

// MustGet looks up a process by id, returning errors.ErrUnsubscribed-style
// "unknown id" failure shaped for syscall dispatch when absent. The
// sentinel reused here (IPCUnsubscribed) is the taxonomy's only "id does
// not refer to anything live" code; syscall dispatch passes only its code
// back to the caller.
func (t *Table) MustGet(pid ID) (*Process, error) {
	p, ok := t.Get(pid)
	if !ok {
		return nil, errors.ErrUnsubscribed.WithDetail("no such process")
	}
	return p, nil
}

// All returns every process currently in the table, live or zombie, for
// ps-style listings.
func (t *Table) All() []*Process {
	out := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	return out
}

// Zombify transitions pid to Zombie with the given result, releasing the
// device and DMA ranges it owned (its Regions are left as they are) and
// reporting back to the caller which subscription ids must be torn down
// by the IPC core (spec §5:
// "on process exit, the kernel... nacks any message still pending
// acknowledgement, releases its subscriptions").
//
// Zombify does not itself touch the IPC core (that would create an import
// cycle); it returns the subscription ids the caller must unsubscribe.
func (t *Table) Zombify(pid ID, result Result) ([]uint64, error) {
	p, err := t.MustGet(pid)
	if err != nil {
		return nil, err
	}
	if !p.IsAlive() {
		return nil, nil
	}

	p.Status = Status{Kind: Zombie, Result: result}
	t.devices.Release(pid)

	subs := p.OwnedSubs
	p.OwnedSubs = nil

	notifyLifecycle(t.notify, Event{Kind: EventExited, PID: pid, Parent: p.ParentID, Result: result})
	return subs, nil
}

// Reap removes a zombie process from the table entirely, once its parent
// (or the kernel, for a parentless zombie) has observed its result. Live
// processes cannot be reaped.
func (t *Table) Reap(pid ID) error {
	p, err := t.MustGet(pid)
	if err != nil {
		return err
	}
	if p.IsAlive() {
		return errors.ErrPermission.WithDetail("process is still alive")
	}
	delete(t.procs, pid)
	return nil
}

// Count returns the number of entries currently in the table, including
// zombies not yet reaped.
func (t *Table) Count() int {
	return len(t.procs)
}
