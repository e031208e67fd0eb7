// Package kernel is the single owned root (spec §9 "Global mutable state
// via locks: ... keep the state as a single owned root passed through the
// syscall handler"): the process table, IPC bus, scheduler bookkeeping,
// and time base, wired together and exposed as one typed API per
// syscall. syscallabi defines the syscall numbers, argument frame and
// result encoding; Kernel.Dispatch reads a frame's argument registers and
// routes them onto this API.
package kernel

import (
	"context"
	"sync"
	"time"

	"d7kernel/errors"
	"d7kernel/ipc"
	"d7kernel/logging"
	"d7kernel/process"
	"d7kernel/sched"
	"d7kernel/timebase"
)

// Config tunes the kernel's fixed resources at boot.
type Config struct {
	CalibrationInterval time.Duration
	DefaultMemoryLimit  uint64
	DefaultDMALimit     uint64
}

// DefaultConfig returns reasonable defaults for local runs and tests: a
// short calibration window and generous per-process resource limits.
func DefaultConfig() Config {
	return Config{
		CalibrationInterval: 10 * time.Millisecond,
		DefaultMemoryLimit:  64 << 20,
		DefaultDMALimit:     16 << 20,
	}
}

// Kernel owns every piece of mutable core state (spec §9). mu serializes
// kernel entries: the scheduler and process table have no lock of their
// own, matching "no locks are needed under the single-CPU core model" for
// a single synchronous trap handler, generalized to "one mutex" now that
// each process is a goroutine rather than a cooperatively resumed
// coroutine. ipc.Bus and timebase.TimeBase guard themselves internally
// and are deliberately called with mu released, so a process blocked in
// Receive/Deliver/SleepUntil never holds the kernel root hostage.
type Kernel struct {
	mu sync.Mutex

	cfg   Config
	Table *process.Table
	Bus   *ipc.Bus
	Sched *sched.Scheduler
	Time  *timebase.TimeBase

	ctxs    map[process.ID]context.Context
	cancels map[process.ID]context.CancelFunc

	// irqHandlers is the one stub installed per IRQ line via
	// irq_set_handler, consulted by FireIRQ before it bridges an
	// interrupt onto the IPC bus (spec §5 IRQ semantics).
	irqHandlers map[uint64]irqHandler
}

// New creates a booted kernel with an empty process table.
func New(cfg Config) *Kernel {
	k := &Kernel{
		cfg:         cfg,
		Bus:         ipc.NewBus(),
		Sched:       sched.New(),
		Time:        timebase.Calibrate(cfg.CalibrationInterval),
		ctxs:        make(map[process.ID]context.Context),
		cancels:     make(map[process.ID]context.CancelFunc),
		irqHandlers: make(map[uint64]irqHandler),
	}
	k.Table = process.NewTable(k.Bus)
	return k
}

// Boot creates the init process from image and returns it, Ready and
// enqueued on the scheduler. It has no parent.
func (k *Kernel) Boot(image process.Image, privilege process.Privilege) *process.Process {
	k.mu.Lock()
	defer k.mu.Unlock()

	image.Requested = privilege
	p := k.Table.Create(image, 0, false, privilege)
	k.Sched.Enqueue(uint64(p.PID))
	k.newCancel(p.PID)
	logging.Info("process spawned", "pid", p.PID, "parent", nil)
	return p
}

// newCancel installs pid's one cancellable context, used to unblock any
// of its in-flight IPC/timer waits when it is killed. Must be called
// with mu held.
func (k *Kernel) newCancel(pid process.ID) {
	ctx, cancel := context.WithCancel(context.Background())
	k.ctxs[pid] = ctx
	k.cancels[pid] = cancel
}

// ctxFor returns the context tied to pid's lifetime, creating one if
// missing (defensive; every live process should already have one from
// Boot/Exec).
func (k *Kernel) ctxFor(pid process.ID) context.Context {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ctx, ok := k.ctxs[pid]; ok {
		return ctx
	}
	k.newCancel(pid)
	return k.ctxs[pid]
}

// Exec parses elf as a new process image and enqueues it as a child of
// caller (spec §4.2 exec). Privilege never exceeds caller's own (spec §7
// Inherit).
func (k *Kernel) Exec(caller process.ID, elf []byte, args, env []string, requested process.Privilege, limits process.Limits) (process.ID, error) {
	entry, regions, err := process.LoadELF(elf)
	if err != nil {
		return 0, errors.New("exec", errors.Unknown).WithDetail(err.Error())
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	parent, err := k.Table.MustGet(caller)
	if err != nil {
		return 0, err
	}

	if limits.MaxMemoryBytes == 0 {
		limits.MaxMemoryBytes = k.cfg.DefaultMemoryLimit
	}
	if limits.MaxDMABytes == 0 {
		limits.MaxDMABytes = k.cfg.DefaultDMALimit
	}

	image := process.Image{
		Name:      "",
		ELF:       elf,
		Args:      args,
		Env:       env,
		Requested: requested,
		Limits:    limits,
	}
	child := k.Table.Create(image, caller, true, parent.Privilege)
	for _, r := range regions {
		child.AddRegion(r)
	}
	if len(args) > 0 || len(env) > 0 {
		argBytes := process.EncodeArgv(args, env)
		child.AddRegion(process.ArgumentRegion(child.Regions, uint64(len(argBytes))))
	}
	_ = entry // entry point is recorded on Image/Regions; real dispatch to it is out of scope (bootloader/paging, spec §1).

	k.Sched.Enqueue(uint64(child.PID))
	k.newCancel(child.PID)
	return child.PID, nil
}

// Exit terminates caller with the given completion code (spec §4.2 exit).
func (k *Kernel) Exit(caller process.ID, code uint64) error {
	return k.terminate(caller, process.Completed(code))
}

// Kill terminates caller with a fatal fault result, cancelling every
// blocking operation it owns (spec §3 fatal faults).
func (k *Kernel) Kill(caller process.ID, result process.Result) error {
	return k.terminate(caller, result)
}

func (k *Kernel) terminate(pid process.ID, result process.Result) error {
	k.mu.Lock()
	subs, err := k.Table.Zombify(pid, result)
	cancel, hasCancel := k.cancels[pid]
	delete(k.cancels, pid)
	delete(k.ctxs, pid)
	k.Sched.CancelWait(uint64(pid))
	for irq, h := range k.irqHandlers {
		if h.owner == pid {
			delete(k.irqHandlers, irq)
		}
	}
	k.mu.Unlock()

	if err != nil {
		return err
	}
	if hasCancel {
		cancel()
	}
	// subs (the process-table side list of owned subscription ids) is
	// informational here: ReleaseOwner independently tears down every
	// subscription the bus has recorded for this owner, so there is
	// nothing left to do with subs beyond letting ps-style callers see it
	// was non-empty.
	_ = subs
	k.Bus.ReleaseOwner(uint64(pid))
	return nil
}

// GetPID never fails (spec §4.2).
func (k *Kernel) GetPID(caller process.ID) uint64 {
	return uint64(caller)
}

// MemSetSize grows or shrinks caller's heap region accounting (spec §4.2
// mem_set_size).
func (k *Kernel) MemSetSize(caller process.ID, newBytes uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.Table.MustGet(caller)
	if err != nil {
		return err
	}
	return p.ReserveMemory(newBytes)
}

// SchedYield requeues caller at the end of the ready queue (spec §4.2
// sched_yield).
func (k *Kernel) SchedYield(caller process.ID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Sched.Enqueue(uint64(caller))
}

// SchedSleepNs blocks caller until now()+ns ticks have elapsed (spec §4.2
// sched_sleep_ns).
func (k *Kernel) SchedSleepNs(caller process.ID, ns uint64) error {
	deadline, err := k.Time.Deadline(ns)
	if err != nil {
		return err
	}

	k.mu.Lock()
	p, err := k.Table.MustGet(caller)
	if err != nil {
		k.mu.Unlock()
		return err
	}
	p.Status = process.Status{Kind: process.BlockedOnTimer, Deadline: deadline, HasDeadline: true}
	k.Sched.BlockOnTimer(uint64(caller), deadline)
	k.mu.Unlock()

	ctx := k.ctxFor(caller)
	err = k.Time.SleepUntil(ctx, deadline)

	k.mu.Lock()
	if p.IsAlive() {
		p.Status = process.Status{Kind: process.Ready}
		k.Sched.Enqueue(uint64(caller))
	}
	k.mu.Unlock()
	return err
}

// Tick drives the scheduler's deadline index forward, waking every
// process whose sleep or timed wait has elapsed (spec §4.2 Scheduler).
func (k *Kernel) Tick(now uint64) []uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Sched.Tick(now)
}

// Processes returns a ps-style snapshot of every process in the table.
func (k *Kernel) Processes() []*process.Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Table.All()
}

// InfoPage returns the read-only per-CPU info page spec §6 describes as
// mapped into every process (tsc_freq_hz, tsc_offset). cpu is accepted for
// API symmetry with the architectural multi-CPU indexing scheme; the
// single-CPU core model means every id observes the same calibration and
// a zero offset.
func (k *Kernel) InfoPage(cpu uint32) process.InfoPage {
	return process.InfoPage{TSCFreqHz: k.Time.FreqHz(), TSCOffset: 0}
}
