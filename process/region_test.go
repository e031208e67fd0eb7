package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionContains(t *testing.T) {
	r := Region{VirtStart: 0x1000, Length: 0x1000}

	require.True(t, r.Contains(0x1000, 0x10))
	require.True(t, r.Contains(0x1ff0, 0x10))
	require.False(t, r.Contains(0x1ff0, 0x20))
	require.False(t, r.Contains(0x2000, 1))
}

func TestRegionOverlaps(t *testing.T) {
	a := Region{VirtStart: 0x1000, Length: 0x1000}
	b := Region{VirtStart: 0x1800, Length: 0x1000}
	c := Region{VirtStart: 0x2000, Length: 0x1000}

	require.True(t, a.Overlaps(b))
	require.True(t, b.Overlaps(a))
	require.False(t, a.Overlaps(c))
}

func TestProtectionHas(t *testing.T) {
	rw := ProtRead | ProtWrite
	require.True(t, rw.Has(ProtRead))
	require.True(t, rw.Has(ProtWrite))
	require.False(t, rw.Has(ProtExec))
	require.True(t, rw.Has(ProtRead|ProtWrite))
}
