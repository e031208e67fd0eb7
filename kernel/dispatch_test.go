package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"d7kernel/errors"
	"d7kernel/process"
	"d7kernel/syscallabi"
)

func TestDispatchRejectsUnknownSyscallNumber(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	_, fault := k.Dispatch(p.PID, syscallabi.Number(0xff), syscallabi.Args{}, nil, nil)
	require.NotNil(t, fault)
	require.Equal(t, errors.InvalidSyscallNumber, fault.Result.Reason)
}

func TestDispatchGetPID(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	outcome, fault := k.Dispatch(p.PID, syscallabi.SysGetPID, syscallabi.Args{}, nil, nil)
	require.Nil(t, fault)
	success, value := outcome.Encode()
	require.Equal(t, uint64(1), success)
	require.Equal(t, uint64(p.PID), value)
}

func TestDispatchExitTerminatesCaller(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	_, fault := k.Dispatch(p.PID, syscallabi.SysExit, syscallabi.Args{A0: 9}, nil, nil)
	require.Nil(t, fault)
	require.False(t, p.IsAlive())
	require.Equal(t, uint64(9), p.Status.Result.Code)
}

func TestDispatchIPCSubscribePublishReceive(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	subOutcome, fault := k.Dispatch(p.PID, syscallabi.SysIPCSubscribe, syscallabi.Args{A1: 1}, []byte("evt/a"), nil)
	require.Nil(t, fault)
	_, subID := subOutcome.Encode()

	topic := []byte("evt/a")
	data := []byte{9, 9}
	in := append(append([]byte{}, topic...), data...)
	_, fault = k.Dispatch(p.PID, syscallabi.SysIPCPublish, syscallabi.Args{A0: uint64(len(topic))}, in, nil)
	require.Nil(t, fault)

	out := make([]byte, 8)
	recvOutcome, fault := k.Dispatch(p.PID, syscallabi.SysIPCReceive, syscallabi.Args{A0: subID}, nil, out)
	require.Nil(t, fault)
	success, n := recvOutcome.Encode()
	require.Equal(t, uint64(1), success)
	require.Equal(t, data, out[:n])
}

func TestDispatchIPCSubscribeRejectsNonUTF8Filter(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	outcome, fault := k.Dispatch(p.PID, syscallabi.SysIPCSubscribe, syscallabi.Args{}, []byte{0xff, 0xfe}, nil)
	require.Nil(t, fault)
	success, code := outcome.Encode()
	require.Equal(t, uint64(0), success)
	require.Equal(t, uint64(errors.InvalidUTF8), code)
}

func TestDispatchMmapPhysicalRequiresPrivDMA(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	outcome, fault := k.Dispatch(p.PID, syscallabi.SysMmapPhysical,
		syscallabi.Args{A0: 0x1000, A1: 0x2000, A2: 0x1000, A3: uint64(process.ProtRead)}, nil, nil)
	require.Nil(t, fault)
	success, code := outcome.Encode()
	require.Equal(t, uint64(0), success)
	require.Equal(t, uint64(errors.IPCPermissionError), code)
}

func TestDispatchDMAAllocateAndFreeRoundTrip(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, process.PrivDMA)

	allocOutcome, fault := k.Dispatch(p.PID, syscallabi.SysDMAAllocate, syscallabi.Args{A0: 0x1000}, nil, nil)
	require.Nil(t, fault)
	success, phys := allocOutcome.Encode()
	require.Equal(t, uint64(1), success)

	_, fault = k.Dispatch(p.PID, syscallabi.SysDMAFree, syscallabi.Args{A0: phys, A1: 0x1000}, nil, nil)
	require.Nil(t, fault)
}

func TestDispatchDebugPrintNeverFailsOnNonUTF8(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	outcome, fault := k.Dispatch(p.PID, syscallabi.SysDebugPrint, syscallabi.Args{}, []byte{0xff, 0xfe}, nil)
	require.Nil(t, fault)
	success, _ := outcome.Encode()
	require.Equal(t, uint64(1), success)
}

func TestDispatchKernelLogReadRequiresPrivilege(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	outcome, fault := k.Dispatch(p.PID, syscallabi.SysKernelLogRead, syscallabi.Args{}, nil, make([]byte, 16))
	require.Nil(t, fault)
	success, code := outcome.Encode()
	require.Equal(t, uint64(0), success)
	require.Equal(t, uint64(errors.IPCPermissionError), code)
}

func TestDispatchGetRandomFillsOutBuffer(t *testing.T) {
	k := New(testConfig())
	p := k.Boot(process.Image{}, 0)

	out := make([]byte, 16)
	outcome, fault := k.Dispatch(p.PID, syscallabi.SysGetRandom, syscallabi.Args{}, nil, out)
	require.Nil(t, fault)
	success, n := outcome.Encode()
	require.Equal(t, uint64(1), success)
	require.Equal(t, uint64(16), n)
}
