package process

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-mesh/remora/internal/debug/breakpoint"
	"github.com/remora-mesh/remora/internal/sysapi"
	"github.com/remora-mesh/remora/internal/sysapi/mocksys"
	"github.com/remora-mesh/remora/internal/testutil"
)

// nopDelegate satisfies breakpoint.ProcessDelegate for tests that only
// need a Breakpoint carrying settings.
type nopDelegate struct{}

func (nopDelegate) RegisterBreakpoint(*breakpoint.Breakpoint, sysapi.Koid, uint64) error { return nil }
func (nopDelegate) UnregisterBreakpoint(*breakpoint.Breakpoint, sysapi.Koid, uint64)     {}
func (nopDelegate) RegisterWatchpoint(*breakpoint.Breakpoint, sysapi.Koid, sysapi.AddressRange) error {
	return nil
}
func (nopDelegate) UnregisterWatchpoint(*breakpoint.Breakpoint, sysapi.Koid, sysapi.AddressRange) {}

func newBreakpoint(t *testing.T, id uint32, kind breakpoint.Kind) *breakpoint.Breakpoint {
	t.Helper()
	bp := breakpoint.New(nopDelegate{}, zerolog.Nop())
	require.NoError(t, bp.SetSettings(breakpoint.Settings{ID: id, Kind: kind}))
	return bp
}

func setup(t *testing.T) (*mocksys.System, *mocksys.Process, *DebuggedProcess) {
	t.Helper()
	s := mocksys.NewSystem()
	mp := s.AddProcess(s.Root(), 100, "target")
	mp.AddMemoryRegion("code", 0x1000, 0x1000)
	mp.AddThread(1000, "main")

	dp := New(mp, sysapi.BreakInstruction("amd64"), testutil.NewTestLogger(t))
	return s, mp, dp
}

func TestSoftwareBreakpointPatchesAndRestores(t *testing.T) {
	_, mp, dp := setup(t)
	_, err := mp.WriteMemory(0x1100, []byte{0x55})
	require.NoError(t, err)

	bp := newBreakpoint(t, 1, breakpoint.Software)
	require.NoError(t, dp.RegisterSoftwareBreakpoint(bp, 0x1100))
	assert.Equal(t, []byte{0xCC}, mp.MemoryAt(0x1100, 1), "break instruction patched in")

	dp.UnregisterSoftwareBreakpoint(bp, 0x1100)
	assert.Equal(t, []byte{0x55}, mp.MemoryAt(0x1100, 1), "original byte restored")
}

func TestSoftwareBreakpointUnmappedAddress(t *testing.T) {
	_, _, dp := setup(t)
	bp := newBreakpoint(t, 1, breakpoint.Software)

	err := dp.RegisterSoftwareBreakpoint(bp, 0xDEAD0000)
	require.Error(t, err)
	assert.ErrorIs(t, err, sysapi.ErrNotMapped)
}

func TestSoftwareBreakpointSharedPatch(t *testing.T) {
	_, mp, dp := setup(t)
	bp1 := newBreakpoint(t, 1, breakpoint.Software)
	bp2 := newBreakpoint(t, 2, breakpoint.Software)

	require.NoError(t, dp.RegisterSoftwareBreakpoint(bp1, 0x1100))
	require.NoError(t, dp.RegisterSoftwareBreakpoint(bp2, 0x1100))

	// Removing one owner keeps the patch for the other.
	dp.UnregisterSoftwareBreakpoint(bp1, 0x1100)
	assert.Equal(t, []byte{0xCC}, mp.MemoryAt(0x1100, 1))

	dp.UnregisterSoftwareBreakpoint(bp2, 0x1100)
	assert.Equal(t, []byte{0x00}, mp.MemoryAt(0x1100, 1))
}

func TestSoftwareBreakpointIdempotentRegistration(t *testing.T) {
	_, mp, dp := setup(t)
	bp := newBreakpoint(t, 1, breakpoint.Software)

	require.NoError(t, dp.RegisterSoftwareBreakpoint(bp, 0x1100))
	require.NoError(t, dp.RegisterSoftwareBreakpoint(bp, 0x1100))

	// A single unregister must fully remove the patch.
	dp.UnregisterSoftwareBreakpoint(bp, 0x1100)
	assert.Equal(t, []byte{0x00}, mp.MemoryAt(0x1100, 1))
}

func TestHardwareBreakpointSlotExhaustion(t *testing.T) {
	s, mp, dp := setup(t)
	s.SetHardwareSlots(1, 1)
	mt, err := mp.Thread(1000)
	require.NoError(t, err)

	bp1 := newBreakpoint(t, 1, breakpoint.Hardware)
	require.NoError(t, dp.RegisterHardwareBreakpoint(bp1, 0x1100))
	assert.Equal(t, 1, mt.(*mocksys.Thread).HardwareBreakpointCount())

	bp2 := newBreakpoint(t, 2, breakpoint.Hardware)
	err = dp.RegisterHardwareBreakpoint(bp2, 0x1200)
	require.Error(t, err)
	assert.ErrorIs(t, err, sysapi.ErrNoHardwareSlots)
	assert.Equal(t, 1, mt.(*mocksys.Thread).HardwareBreakpointCount(), "failed install leaves no residue")
}

func TestHardwareBreakpointUnwindAcrossThreads(t *testing.T) {
	s, mp, dp := setup(t)
	s.SetHardwareSlots(2, 2)

	second := mp.AddThread(1001, "worker")
	dp.OnThreadStarting(second)

	// Consume both slots of the second thread directly so the process
	// level install fails there after succeeding on "main".
	require.NoError(t, second.InstallHardwareBreakpoint(0xA000))
	require.NoError(t, second.InstallHardwareBreakpoint(0xB000))

	bp := newBreakpoint(t, 1, breakpoint.Hardware)
	err := dp.RegisterHardwareBreakpoint(bp, 0x1100)
	require.Error(t, err)

	mt, err2 := mp.Thread(1000)
	require.NoError(t, err2)
	assert.Equal(t, 0, mt.(*mocksys.Thread).HardwareBreakpointCount(),
		"install on the first thread is unwound when the second fails")
}

func TestWatchpointInstall(t *testing.T) {
	_, mp, dp := setup(t)
	rng := sysapi.AddressRange{Begin: 0x1200, End: 0x1208}

	bp := newBreakpoint(t, 1, breakpoint.Watchpoint)
	require.NoError(t, dp.RegisterWatchpoint(bp, rng))

	mt, err := mp.Thread(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, mt.(*mocksys.Thread).WatchpointCount())

	dp.UnregisterWatchpoint(bp, rng)
	assert.Equal(t, 0, mt.(*mocksys.Thread).WatchpointCount())
}

func TestBreakpointsAt(t *testing.T) {
	_, _, dp := setup(t)
	sw := newBreakpoint(t, 1, breakpoint.Software)
	wp := newBreakpoint(t, 2, breakpoint.Watchpoint)

	require.NoError(t, dp.RegisterSoftwareBreakpoint(sw, 0x1100))
	require.NoError(t, dp.RegisterWatchpoint(wp, sysapi.AddressRange{Begin: 0x1100, End: 0x1110}))

	hits := dp.BreakpointsAt(0x1100)
	assert.Len(t, hits, 2, "code breakpoint and covering watchpoint both hit")

	hits = dp.BreakpointsAt(0x1108)
	assert.Len(t, hits, 1, "only the watchpoint covers the middle of its range")

	assert.Empty(t, dp.BreakpointsAt(0x1200))
}

func TestPauseResumeIdempotent(t *testing.T) {
	_, mp, dp := setup(t)
	mt, err := mp.Thread(1000)
	require.NoError(t, err)
	mock := mt.(*mocksys.Thread)

	require.NoError(t, dp.Pause())
	require.NoError(t, dp.Pause())
	assert.Equal(t, 1, mock.SuspendCount(), "double pause suspends once")

	require.NoError(t, dp.Resume())
	require.NoError(t, dp.Resume())
	assert.Equal(t, 0, mock.SuspendCount(), "double resume resumes once")
}

func TestThreadLifecycle(t *testing.T) {
	_, mp, dp := setup(t)

	nt := mp.AddThread(1001, "worker")
	dp.OnThreadStarting(nt)
	_, ok := dp.Thread(1001)
	assert.True(t, ok)

	assert.True(t, dp.OnThreadExiting(1001))
	_, ok = dp.Thread(1001)
	assert.False(t, ok)
	assert.False(t, dp.OnThreadExiting(1001), "unknown thread exit reports false")
}

func TestTeardownRestoresPatches(t *testing.T) {
	_, mp, dp := setup(t)
	_, err := mp.WriteMemory(0x1100, []byte{0x90})
	require.NoError(t, err)

	bp := newBreakpoint(t, 1, breakpoint.Software)
	require.NoError(t, dp.RegisterSoftwareBreakpoint(bp, 0x1100))

	dp.Teardown()
	assert.Equal(t, []byte{0x90}, mp.MemoryAt(0x1100, 1))
}
