// Package sched implements the cooperative, single-CPU scheduler core:
// a FIFO ready queue plus blocked-on-subscription and blocked-on-deadline
// sets indexed for fast wake (spec §4.2 Scheduler).
//
// Scheduler knows nothing about processes or IPC messages; it is generic
// over opaque uint64 ids. Only package kernel drives it: it enqueues
// processes, records IPC waits with BlockOnIPC, and calls BlockOnTimer
// for sched_sleep_ns. ipc.Bus does its own blocking and never calls into
// Scheduler.
package sched

import "sort"

// waitEntry records what a blocked id is waiting for, so CancelWait can
// remove it from every index it was inserted into.
type waitEntry struct {
	subs        []uint64
	hasDeadline bool
	deadline    uint64
}

// Scheduler is the ready queue plus the two blocked-process indexes. All
// methods assume the caller already holds whatever single mutex serializes
// kernel state (spec §5); Scheduler itself is not safe for concurrent use
// without external synchronization.
type Scheduler struct {
	ready []uint64

	blockedBySub map[uint64]map[uint64]bool // subID -> set of waiting ids
	deadlines    []deadlineEntry            // sorted ascending by deadline
	waiting      map[uint64]waitEntry        // id -> what it is blocked on
}

type deadlineEntry struct {
	id       uint64
	deadline uint64
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		blockedBySub: make(map[uint64]map[uint64]bool),
		waiting:      make(map[uint64]waitEntry),
	}
}

// Enqueue appends id to the tail of the ready queue. Used both for newly
// created processes and for sched_yield (requeue caller at end of ready
// queue, spec §4.2).
func (s *Scheduler) Enqueue(id uint64) {
	s.ready = append(s.ready, id)
}

// PickNext dequeues the head of the ready queue. ok is false if the ready
// queue is empty, meaning the real kernel would halt until next interrupt.
func (s *Scheduler) PickNext() (id uint64, ok bool) {
	if len(s.ready) == 0 {
		return 0, false
	}
	id = s.ready[0]
	s.ready = s.ready[1:]
	return id, true
}

// ReadyLen reports how many ids are currently ready to run.
func (s *Scheduler) ReadyLen() int {
	return len(s.ready)
}

// BlockOnIPC records id as blocked on every subscription in subs, and
// optionally on a deadline (ipc_select with a timeout). BlockOnIPC does
// not touch the ready queue.
func (s *Scheduler) BlockOnIPC(id uint64, subs []uint64, hasDeadline bool, deadline uint64) {
	s.CancelWait(id)

	for _, sub := range subs {
		set, ok := s.blockedBySub[sub]
		if !ok {
			set = make(map[uint64]bool)
			s.blockedBySub[sub] = set
		}
		set[id] = true
	}
	if hasDeadline {
		s.insertDeadline(id, deadline)
	}
	s.waiting[id] = waitEntry{subs: append([]uint64(nil), subs...), hasDeadline: hasDeadline, deadline: deadline}
}

// BlockOnTimer records id as blocked purely on a deadline (sched_sleep_ns).
func (s *Scheduler) BlockOnTimer(id uint64, deadline uint64) {
	s.CancelWait(id)
	s.insertDeadline(id, deadline)
	s.waiting[id] = waitEntry{hasDeadline: true, deadline: deadline}
}

func (s *Scheduler) insertDeadline(id, deadline uint64) {
	i := sort.Search(len(s.deadlines), func(i int) bool { return s.deadlines[i].deadline >= deadline })
	s.deadlines = append(s.deadlines, deadlineEntry{})
	copy(s.deadlines[i+1:], s.deadlines[i:])
	s.deadlines[i] = deadlineEntry{id: id, deadline: deadline}
}

// WakeSub wakes every id blocked on sub (directly, or as part of a wider
// ipc_select wait set), moving it from blocked to ready. It returns the
// woken ids so the caller can clear any per-process status bookkeeping.
func (s *Scheduler) WakeSub(sub uint64) []uint64 {
	set, ok := s.blockedBySub[sub]
	if !ok || len(set) == 0 {
		return nil
	}
	woken := make([]uint64, 0, len(set))
	for id := range set {
		woken = append(woken, id)
	}
	sort.Slice(woken, func(i, j int) bool { return woken[i] < woken[j] })
	for _, id := range woken {
		s.CancelWait(id)
		s.Enqueue(id)
	}
	return woken
}

// Tick wakes every id whose deadline is <= now, returning the woken ids in
// deadline order.
func (s *Scheduler) Tick(now uint64) []uint64 {
	i := 0
	for i < len(s.deadlines) && s.deadlines[i].deadline <= now {
		i++
	}
	if i == 0 {
		return nil
	}
	due := s.deadlines[:i]
	s.deadlines = s.deadlines[i:]

	woken := make([]uint64, 0, len(due))
	for _, d := range due {
		if _, stillWaiting := s.waiting[d.id]; !stillWaiting {
			continue
		}
		woken = append(woken, d.id)
		s.CancelWait(d.id)
		s.Enqueue(d.id)
	}
	return woken
}

// CancelWait removes id from every blocked index it may be part of,
// without enqueueing it as ready. Used when a process is killed while
// blocked, and internally before re-registering a new wait.
func (s *Scheduler) CancelWait(id uint64) {
	entry, ok := s.waiting[id]
	if !ok {
		return
	}
	for _, sub := range entry.subs {
		if set, ok := s.blockedBySub[sub]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.blockedBySub, sub)
			}
		}
	}
	if entry.hasDeadline {
		for i, d := range s.deadlines {
			if d.id == id && d.deadline == entry.deadline {
				s.deadlines = append(s.deadlines[:i], s.deadlines[i+1:]...)
				break
			}
		}
	}
	delete(s.waiting, id)
}

// IsBlocked reports whether id is currently registered as blocked.
func (s *Scheduler) IsBlocked(id uint64) bool {
	_, ok := s.waiting[id]
	return ok
}
