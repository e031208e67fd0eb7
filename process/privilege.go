package process

import (
	"fmt"
	"strings"

	"d7kernel/errors"
)

// Privilege is a bitmask of the kernel privileges a process may hold,
// adapted from the teacher's Linux capability bitset: a small, named set
// of bits checked before a syscall is allowed to touch something the
// process does not unconditionally own (spec §6 Permission errors).
type Privilege uint32

const (
	// PrivDMA gates dma_allocate and mmap_physical.
	PrivDMA Privilege = 1 << iota
	// PrivIRQ gates irq_set_handler.
	PrivIRQ
	// PrivSpawn is carried and inherited like the other bits; no syscall
	// checks it.
	PrivSpawn
	// PrivKernelLog gates kernel_log_read.
	PrivKernelLog
)

var privilegeNames = map[Privilege]string{
	PrivDMA:       "dma",
	PrivIRQ:       "irq",
	PrivSpawn:     "spawn",
	PrivKernelLog: "kernel_log",
}

var privilegeByName = func() map[string]Privilege {
	m := make(map[string]Privilege, len(privilegeNames))
	for p, name := range privilegeNames {
		m[name] = p
	}
	return m
}()

// Has reports whether p grants every bit set in want.
func (p Privilege) Has(want Privilege) bool {
	return p&want == want
}

// String renders p as a comma-separated list of privilege names, in the
// same spirit as the teacher's CAP_* name list.
func (p Privilege) String() string {
	var names []string
	for bit, name := range privilegeNames {
		if p.Has(bit) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// ParsePrivilege looks up a single privilege by name.
func ParsePrivilege(name string) (Privilege, bool) {
	p, ok := privilegeByName[strings.ToLower(name)]
	return p, ok
}

// Require returns errors.ErrPermission if held does not grant want,
// mirroring the bounding-set check the teacher applies before dropping
// capabilities: a process may never be granted more than its parent held.
func Require(held, want Privilege) error {
	if !held.Has(want) {
		return errors.ErrPermission.WithDetail(fmt.Sprintf("missing privilege %q", want))
	}
	return nil
}

// Inherit computes the privilege set a spawned process may receive: the
// intersection of what the parent holds and what the image requests,
// exactly as exec() may only narrow, never widen, privilege.
func Inherit(parent, requested Privilege) Privilege {
	return parent & requested
}
