package agent

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-mesh/remora/internal/component"
	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/sysapi/mocksys"
)

func TestJobFilterReportsExistingMatches(t *testing.T) {
	sys := mocksysWithTree(t)
	a, _ := newTestAgent(t, sys, nil)

	reply := a.OnJobFilter(wire.JobFilterRequest{Filters: []string{"worker"}})
	require.True(t, reply.Status.Ok(), reply.Status.String())
	assert.ElementsMatch(t, []uint64{100, 101}, reply.MatchedKoids,
		"matches recurse into nested jobs")

	// Matching does not implicitly attach.
	status := a.OnStatus(wire.StatusRequest{})
	assert.Empty(t, status.Processes)
	assert.Equal(t, uint32(1), status.FilterCount)
}

func TestJobFilterCatchesNewProcesses(t *testing.T) {
	sys := mocksysWithTree(t)
	a, sender := newTestAgent(t, sys, nil)

	reply := a.OnJobFilter(wire.JobFilterRequest{Filters: []string{"worker"}})
	require.True(t, reply.Status.Ok())

	sys.StartProcess(sys.Root(), 200, "worker_new")

	msg := sender.waitFor(t, wire.MsgNotifyProcessStarting)
	notify := msg.Payload.(wire.NotifyProcessStarting)
	assert.Equal(t, uint64(200), notify.Koid)
	assert.Equal(t, "worker_new", notify.Name)
	assert.Zero(t, notify.ComponentID)

	require.Eventually(t, func() bool {
		return len(a.OnStatus(wire.StatusRequest{}).Processes) == 1
	}, 5*time.Second, 5*time.Millisecond, "caught process is tracked")
}

func TestJobFilterEmptySetMatchesNothing(t *testing.T) {
	sys := mocksysWithTree(t)
	a, sender := newTestAgent(t, sys, nil)

	reply := a.OnJobFilter(wire.JobFilterRequest{Filters: nil})
	require.True(t, reply.Status.Ok())
	assert.Empty(t, reply.MatchedKoids)

	sys.StartProcess(sys.Root(), 201, "worker_more")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.byType(wire.MsgNotifyProcessStarting),
		"an empty filter set deliberately catches nothing")
}

func TestJobFilterInvalidRegexRejected(t *testing.T) {
	sys := mocksysWithTree(t)
	a, _ := newTestAgent(t, sys, nil)

	reply := a.OnJobFilter(wire.JobFilterRequest{Filters: []string{"worker", "re:["}})
	assert.Equal(t, wire.ErrInvalidArgs, reply.Status.Code)

	// The previous (empty) set survives the rejected call.
	status := a.OnStatus(wire.StatusRequest{})
	assert.Zero(t, status.FilterCount)
}

func TestJobFilterOnNestedJob(t *testing.T) {
	sys := mocksysWithTree(t)
	a, _ := newTestAgent(t, sys, nil)

	reply := a.OnJobFilter(wire.JobFilterRequest{JobKoid: 2, Filters: []string{"worker"}})
	require.True(t, reply.Status.Ok())
	assert.Equal(t, []uint64{101}, reply.MatchedKoids, "scoped to the nested job")

	unknown := a.OnJobFilter(wire.JobFilterRequest{JobKoid: 77, Filters: []string{"x"}})
	assert.Equal(t, wire.ErrNotFound, unknown.Status.Code)
}

func TestProcessTreeSnapshot(t *testing.T) {
	sys := mocksysWithTree(t)
	a, _ := newTestAgent(t, sys, nil)

	reply := a.OnProcessTree(wire.ProcessTreeRequest{})
	root := reply.Root
	assert.Equal(t, wire.ProcessTreeJob, root.Type)
	assert.Equal(t, uint64(1), root.Koid)

	var jobs, procs int
	var walk func(wire.ProcessTreeRecord)
	walk = func(r wire.ProcessTreeRecord) {
		switch r.Type {
		case wire.ProcessTreeJob:
			jobs++
		case wire.ProcessTreeProcess:
			procs++
		}
		for _, c := range r.Children {
			walk(c)
		}
	}
	walk(root)
	assert.Equal(t, 2, jobs)
	assert.Equal(t, 3, procs)
}

// mocksysWithTree builds:
//
//	root(1): worker_a(100), other(102)
//	  nested(2): worker_b(101)
func mocksysWithTree(t *testing.T) *mocksys.System {
	t.Helper()
	sys := mocksys.NewSystem()
	sys.AddProcess(sys.Root(), 100, "worker_a")
	sys.AddProcess(sys.Root(), 102, "other")
	nested := sys.AddJob(sys.Root(), 2, "nested")
	sys.AddProcess(nested, 101, "worker_b")
	return sys
}

// stubComponents is a scripted component.Manager.
type stubComponents struct {
	nextID   atomic.Uint64
	launched atomic.Int32
	failNext bool
}

func (m *stubComponents) IsComponentURL(s string) bool {
	return len(s) > 7 && s[:7] == "pkg:///"
}

func (m *stubComponents) Prepare(argv []string) (*component.LaunchInfo, error) {
	if len(argv) == 0 || !m.IsComponentURL(argv[0]) {
		return nil, fmt.Errorf("not a component: %v", argv)
	}
	name := argv[0][7:]
	return &component.LaunchInfo{
		URL:         argv[0],
		Argv:        argv,
		Name:        name,
		Filter:      name,
		ComponentID: m.nextID.Add(1),
	}, nil
}

func (m *stubComponents) Launch(info *component.LaunchInfo, ioFn component.IOFunc, onExit func(error)) (*component.Controller, error) {
	if m.failNext {
		m.failNext = false
		return nil, fmt.Errorf("launch refused")
	}
	m.launched.Add(1)
	return &component.Controller{}, nil
}

func TestComponentLaunchCorrelation(t *testing.T) {
	sys := mocksysWithTree(t)
	components := &stubComponents{}
	a, sender := newTestAgent(t, sys, components)

	reply := a.OnLaunch(wire.LaunchRequest{Argv: []string{"pkg:///hello"}})
	require.True(t, reply.Status.Ok(), reply.Status.String())
	assert.Equal(t, "hello", reply.ProcessName)
	assert.Equal(t, uint64(1), reply.ComponentID)
	assert.Zero(t, reply.ProcessKoid, "the process arrives later, by notification")

	sys.StartProcess(sys.Root(), 300, "hello")

	msg := sender.waitFor(t, wire.MsgNotifyProcessStarting)
	notify := msg.Payload.(wire.NotifyProcessStarting)
	assert.Equal(t, uint64(300), notify.Koid)
	assert.Equal(t, uint64(1), notify.ComponentID, "process start is correlated to the launch")
}

func TestComponentLaunchWithInvalidFilterLeavesNoExpectation(t *testing.T) {
	sys := mocksysWithTree(t)
	components := &stubComponents{}
	a, _ := newTestAgent(t, sys, components)

	// The expectation is queued before the filter is appended; a filter
	// the job rejects must roll that queue entry back.
	reply := a.OnLaunch(wire.LaunchRequest{Argv: []string{"pkg:///re:["}})
	assert.Equal(t, wire.ErrInvalidArgs, reply.Status.Code)

	a.mu.Lock()
	pending := len(a.expected)
	a.mu.Unlock()
	assert.Zero(t, pending, "rejected filter must not leave a queued expectation")
	assert.Zero(t, a.rootJob.FilterCount())
}

func TestConcurrentComponentLaunchesConsumeFIFO(t *testing.T) {
	sys := mocksysWithTree(t)
	components := &stubComponents{}
	a, sender := newTestAgent(t, sys, components)

	first := a.OnLaunch(wire.LaunchRequest{Argv: []string{"pkg:///hello"}})
	second := a.OnLaunch(wire.LaunchRequest{Argv: []string{"pkg:///hello"}})
	require.True(t, first.Status.Ok())
	require.True(t, second.Status.Ok())
	require.NotEqual(t, first.ComponentID, second.ComponentID)

	sys.StartProcess(sys.Root(), 301, "hello")
	sys.StartProcess(sys.Root(), 302, "hello")

	require.Eventually(t, func() bool {
		return len(sender.byType(wire.MsgNotifyProcessStarting)) == 2
	}, 5*time.Second, 5*time.Millisecond)

	msgs := sender.byType(wire.MsgNotifyProcessStarting)
	got := map[uint64]uint64{}
	for _, m := range msgs {
		n := m.Payload.(wire.NotifyProcessStarting)
		got[n.Koid] = n.ComponentID
	}
	assert.Equal(t, first.ComponentID, got[301], "oldest expectation consumed first")
	assert.Equal(t, second.ComponentID, got[302])
}

func TestComponentLaunchFailureDropsExpectation(t *testing.T) {
	sys := mocksysWithTree(t)
	components := &stubComponents{failNext: true}
	a, sender := newTestAgent(t, sys, components)

	reply := a.OnLaunch(wire.LaunchRequest{Argv: []string{"pkg:///hello"}})
	require.False(t, reply.Status.Ok())

	// The filter may still fire, but no component id is attached.
	sys.StartProcess(sys.Root(), 303, "hello")
	msg := sender.waitFor(t, wire.MsgNotifyProcessStarting)
	assert.Zero(t, msg.Payload.(wire.NotifyProcessStarting).ComponentID)
}
