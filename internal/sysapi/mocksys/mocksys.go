// Package mocksys provides a scriptable in-memory implementation of the
// sysapi interfaces. Tests build a job tree, populate process memory and
// threads, then inject process-start, exception and exit events.
package mocksys

import (
	"fmt"
	"sync"

	"github.com/remora-mesh/remora/internal/sysapi"
)

// System implements sysapi.SystemInterface over an in-memory job tree.
type System struct {
	mu sync.Mutex

	root      *Job
	processes map[sysapi.Koid]*Process
	launches  map[string]launchOutcome

	bpSlots int
	wpSlots int
}

type launchOutcome struct {
	proc *Process
	err  error
}

// NewSystem creates a system with an empty root job (koid 1, name "root")
// and a two-slot hardware budget so slot exhaustion is easy to trigger in
// tests.
func NewSystem() *System {
	s := &System{
		processes: make(map[sysapi.Koid]*Process),
		launches:  make(map[string]launchOutcome),
		bpSlots:   2,
		wpSlots:   2,
	}
	s.root = &Job{sys: s, koid: 1, name: "root"}
	return s
}

// SetHardwareSlots overrides the per-thread hardware breakpoint and
// watchpoint budgets.
func (s *System) SetHardwareSlots(breakpoints, watchpoints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpSlots = breakpoints
	s.wpSlots = watchpoints
}

// RootJob implements sysapi.SystemInterface.
func (s *System) RootJob() sysapi.Job {
	return s.root
}

// Root returns the root job with its concrete type for tree building.
func (s *System) Root() *Job {
	return s.root
}

// Process implements sysapi.SystemInterface.
func (s *System) Process(koid sysapi.Koid) (sysapi.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[koid]
	if !ok {
		return nil, fmt.Errorf("process %d: %w", koid, sysapi.ErrNotFound)
	}
	return p, nil
}

// Launch implements sysapi.SystemInterface. The outcome must have been
// scripted with AddLaunch or SetLaunchError for argv[0].
func (s *System) Launch(argv []string) (sysapi.Process, error) {
	s.mu.Lock()
	outcome, ok := s.launches[argv[0]]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("launch %q: %w", argv[0], sysapi.ErrNotFound)
	}
	if outcome.err != nil {
		s.mu.Unlock()
		return nil, outcome.err
	}
	p := outcome.proc
	p.job = s.root
	s.root.processes = append(s.root.processes, p)
	s.processes[p.koid] = p
	s.mu.Unlock()
	return p, nil
}

// AddLaunch scripts a successful Launch outcome for the given executable
// name. The returned process is not part of the tree until Launch runs.
func (s *System) AddLaunch(name string, koid sysapi.Koid) *Process {
	p := newProcess(s, koid, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches[name] = launchOutcome{proc: p}
	return p
}

// SetLaunchError scripts a failing Launch outcome for the given
// executable name.
func (s *System) SetLaunchError(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches[name] = launchOutcome{err: err}
}

// HardwareBreakpointCount implements sysapi.SystemInterface.
func (s *System) HardwareBreakpointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpSlots
}

// HardwareWatchpointCount implements sysapi.SystemInterface.
func (s *System) HardwareWatchpointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wpSlots
}

// NumCPUs implements sysapi.SystemInterface.
func (s *System) NumCPUs() int { return 4 }

// TotalMemoryMB implements sysapi.SystemInterface.
func (s *System) TotalMemoryMB() uint64 { return 8192 }

// Arch implements sysapi.SystemInterface.
func (s *System) Arch() string { return "amd64" }

// AddJob creates a job nested under parent.
func (s *System) AddJob(parent *Job, koid sysapi.Koid, name string) *Job {
	j := &Job{sys: s, koid: koid, name: name, parent: parent}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent.childJobs = append(parent.childJobs, j)
	return j
}

// AddProcess creates a process under job without firing process-start
// watchers. Use for processes that pre-exist the agent session.
func (s *System) AddProcess(job *Job, koid sysapi.Koid, name string) *Process {
	p := newProcess(s, koid, name)
	p.job = job
	s.mu.Lock()
	defer s.mu.Unlock()
	job.processes = append(job.processes, p)
	s.processes[koid] = p
	return p
}

// StartProcess creates a process under job and fires the process-start
// watchers of job and every ancestor, simulating a new program spawning.
func (s *System) StartProcess(job *Job, koid sysapi.Koid, name string) *Process {
	p := s.AddProcess(job, koid, name)

	s.mu.Lock()
	var fns []func(sysapi.Process)
	for j := job; j != nil; j = j.parent {
		fns = append(fns, j.watchers...)
	}
	s.mu.Unlock()

	// Deliver outside the lock; handlers re-enter the mock.
	for _, fn := range fns {
		fn(p)
	}
	return p
}

func (s *System) removeProcess(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processes, p.koid)
	if p.job != nil {
		procs := p.job.processes
		for i, q := range procs {
			if q == p {
				p.job.processes = append(procs[:i], procs[i+1:]...)
				break
			}
		}
	}
}
