package syscallabi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"d7kernel/errors"
	"d7kernel/process"
)

func newTestProcess(t *testing.T) *process.Process {
	t.Helper()
	p := process.New(process.Image{Name: "t"}, process.Limits{MaxMemoryBytes: 1 << 20})
	require.True(t, p.AddRegion(process.Region{
		VirtStart: 0x1000,
		Length:    0x1000,
		Prot:      process.ProtRead | process.ProtWrite,
	}))
	return p
}

func TestValidatePointerWithinRegionSucceeds(t *testing.T) {
	p := newTestProcess(t)
	_, fault := validatePointer(p, 0x1000, 0x10, process.ProtRead)
	require.Nil(t, fault)
}

func TestValidatePointerOutsideRegionFaults(t *testing.T) {
	p := newTestProcess(t)
	_, fault := validatePointer(p, 0x5000, 0x10, process.ProtRead)
	require.NotNil(t, fault)
	require.Equal(t, errors.InvalidPointer, fault.Result.Reason)
}

func TestValidatePointerWrongProtectionFaults(t *testing.T) {
	p := newTestProcess(t)
	_, fault := validatePointer(p, 0x1000, 0x10, process.ProtExec)
	require.NotNil(t, fault)
}

func TestValidateUTF8(t *testing.T) {
	require.NoError(t, validateUTF8([]byte("hello")))
	require.ErrorIs(t, validateUTF8([]byte{0xff, 0xfe}), errors.ErrInvalidUTF8)
}

func TestValidateSyscallNumber(t *testing.T) {
	require.Nil(t, validateSyscallNumber(SysExit))
	fault := validateSyscallNumber(Number(0xAB))
	require.NotNil(t, fault)
	require.Equal(t, errors.InvalidSyscallNumber, fault.Result.Reason)
}
