package kernel

import (
	"crypto/rand"

	"d7kernel/errors"
	"d7kernel/ipc"
	"d7kernel/process"
	"d7kernel/syscallabi"
)

// cryptoRandRead is a seam so tests can substitute a deterministic
// source for get_random without touching the OS entropy pool.
var cryptoRandRead = rand.Read

// Dispatch decodes one syscall entry and routes it to the matching
// Kernel method (spec §4.2 "Syscall dispatch"). args carries the fixed
// four-register frame; in carries any variable-length payload the
// syscall consumes (ipc_publish's data, exec's ELF bytes, …) and out
// receives any variable-length result (ipc_receive's buf). Copying bytes
// to/from the caller's actual mapped pages, and translating a raw
// register value into the virtual range syscallabi.ValidatePointer
// checks against process.Process.Regions, is the frame allocator/paging
// layer's job and is out of scope (spec §1): Dispatch is handed in/out
// already extracted, so it never has an (addr, size) pair of its own to
// validate. ValidatePointer is exercised directly by syscallabi's own
// tests against that future layer; num is the one register Dispatch
// validates itself, via ValidateSyscallNumber below.
//
// A non-nil *syscallabi.FatalFault means caller must be killed with its
// Result, not returned a recoverable error.
func (k *Kernel) Dispatch(caller process.ID, num syscallabi.Number, args syscallabi.Args, in []byte, out []byte) (syscallabi.Outcome, *syscallabi.FatalFault) {
	if fault := syscallabi.ValidateSyscallNumber(num); fault != nil {
		return syscallabi.Outcome{}, fault
	}

	switch num {
	case syscallabi.SysExit:
		k.Exit(caller, args.A0)
		return syscallabi.Ok(0), nil

	case syscallabi.SysGetPID:
		return syscallabi.Ok(k.GetPID(caller)), nil

	case syscallabi.SysMemSetSize:
		return syscallabi.FromError(k.MemSetSize(caller, args.A0)), nil

	case syscallabi.SysDMAFree:
		return syscallabi.FromError(k.DMAFree(caller, args.A0, args.A1)), nil

	case syscallabi.SysExec:
		pid, err := k.Exec(caller, in, nil, nil, process.Privilege(args.A0), process.Limits{})
		if err != nil {
			return syscallabi.Err(errors.CodeOf(err)), nil
		}
		return syscallabi.Ok(uint64(pid)), nil

	case syscallabi.SysGetRandom:
		fillRandom(out)
		return syscallabi.Ok(uint64(len(out))), nil

	case syscallabi.SysSchedYield:
		k.SchedYield(caller)
		return syscallabi.Ok(0), nil

	case syscallabi.SysSchedSleepNs:
		return syscallabi.FromError(k.SchedSleepNs(caller, args.A0)), nil

	case syscallabi.SysIPCSubscribe:
		if err := syscallabi.ValidateUTF8(in); err != nil {
			return syscallabi.FromError(err), nil
		}
		filter := ipc.Filter{Str: string(in), Exact: args.A1 != 0}
		subID, err := k.IPCSubscribe(caller, filter, args.A2 != 0)
		if err != nil {
			return syscallabi.Err(errors.CodeOf(err)), nil
		}
		return syscallabi.Ok(subID), nil

	case syscallabi.SysIPCUnsubscribe:
		return syscallabi.FromError(k.IPCUnsubscribe(caller, args.A0)), nil

	case syscallabi.SysIPCPublish:
		topic, data, err := splitTopicPayload(in, args.A0)
		if err != nil {
			return syscallabi.FromError(err), nil
		}
		return syscallabi.FromError(k.IPCPublish(topic, data)), nil

	case syscallabi.SysIPCDeliver:
		topic, data, err := splitTopicPayload(in, args.A0)
		if err != nil {
			return syscallabi.FromError(err), nil
		}
		return syscallabi.FromError(k.IPCDeliver(caller, topic, data)), nil

	case syscallabi.SysIPCDeliverReply:
		topic, data, err := splitTopicPayload(in, args.A0)
		if err != nil {
			return syscallabi.FromError(err), nil
		}
		return syscallabi.FromError(k.IPCDeliverReply(topic, data)), nil

	case syscallabi.SysIPCReceive:
		n, err := k.IPCReceive(caller, args.A0, out)
		if err != nil {
			return syscallabi.Err(errors.CodeOf(err)), nil
		}
		return syscallabi.Ok(uint64(n)), nil

	case syscallabi.SysIPCAcknowledge:
		return syscallabi.FromError(k.IPCAcknowledge(caller, args.A0, args.A1, args.A2 != 0)), nil

	case syscallabi.SysIPCSelect:
		subIDs := decodeU64Slice(in)
		id, err := k.IPCSelect(caller, subIDs, args.A0 != 0)
		if err != nil {
			return syscallabi.Err(errors.CodeOf(err)), nil
		}
		return syscallabi.Ok(id), nil

	case syscallabi.SysDebugPrint:
		// debug_print never fails (spec §4.2), so unlike every other
		// string-argument syscall it does not reject non-UTF-8 input;
		// the bytes are written to the log as-is.
		k.DebugPrint(caller, string(in))
		return syscallabi.Ok(0), nil

	case syscallabi.SysIRQSetHandler:
		return syscallabi.FromError(k.IRQSetHandler(caller, args.A0, in)), nil

	case syscallabi.SysMmapPhysical:
		prot := process.Protection(args.A3)
		return syscallabi.FromError(k.MmapPhysical(caller, args.A0, args.A1, args.A2, prot)), nil

	case syscallabi.SysDMAAllocate:
		phys, err := k.DMAAllocate(caller, args.A0)
		if err != nil {
			return syscallabi.Err(errors.CodeOf(err)), nil
		}
		return syscallabi.Ok(phys), nil

	case syscallabi.SysKernelLogRead:
		n, err := k.KernelLogRead(caller, out)
		if err != nil {
			return syscallabi.Err(errors.CodeOf(err)), nil
		}
		return syscallabi.Ok(uint64(n)), nil
	}

	// Unreachable: num.Valid() was checked above.
	return syscallabi.Err(errors.Unknown), nil
}

// splitTopicPayload splits the combined in buffer of a publish/deliver
// family syscall into its topic and data halves, validating the topic
// portion as UTF-8 (spec §4.2 generic argument validation) before it
// reaches ipc.Bus's own empty-topic check.
func splitTopicPayload(in []byte, topicLen uint64) (topic string, data []byte, err error) {
	if topicLen > uint64(len(in)) {
		return "", nil, errors.ErrInvalidUTF8
	}
	topicBytes := in[:topicLen]
	if err := syscallabi.ValidateUTF8(topicBytes); err != nil {
		return "", nil, err
	}
	return string(topicBytes), in[topicLen:], nil
}

// decodeU64Slice reinterprets a little-endian byte buffer as a slice of
// uint64 subscription ids, the shape ipc_select's sub_ids argument takes
// once copied out of the caller's mapped buffer.
func decodeU64Slice(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		var v uint64
		for j := 0; j < 8; j++ {
			v |= uint64(b[i*8+j]) << (8 * j)
		}
		out[i] = v
	}
	return out
}

// fillRandom fills buf with entropy (spec §4.2 get_random, "never
// fails"). Grounded on the teacher's preference for crypto/rand wherever
// randomness must be unpredictable (container id/state generation uses
// the same source elsewhere in the pack).
func fillRandom(buf []byte) {
	_, _ = cryptoRandRead(buf)
}
