// Package hostsys implements the sysapi interfaces on a Linux host.
// Coverage is best-effort: process listing, launching, suspension,
// memory access and address-space inspection work through /proc and
// signals; per-thread debug registers need ptrace scope the agent does
// not take and report ErrNotSupported.
package hostsys

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/remora-mesh/remora/internal/safe"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// watchPollInterval is how often the root job rescans the process table
// for starts. Linux has no job hierarchy to subscribe to.
const watchPollInterval = 250 * time.Millisecond

// System implements sysapi.SystemInterface over the host.
type System struct {
	root   *rootJob
	logger zerolog.Logger
}

// New creates a host-backed system. The root job spans the whole
// process table.
func New(logger zerolog.Logger) *System {
	s := &System{
		logger: logger.With().Str("component", "hostsys").Logger(),
	}
	s.root = &rootJob{sys: s}
	return s
}

// RootJob implements sysapi.SystemInterface.
func (s *System) RootJob() sysapi.Job { return s.root }

// Process implements sysapi.SystemInterface.
func (s *System) Process(koid sysapi.Koid) (sysapi.Process, error) {
	pid, ok := safe.Pid(uint64(koid))
	if !ok {
		return nil, fmt.Errorf("process %d: %w", koid, sysapi.ErrNotFound)
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", koid, sysapi.ErrNotFound)
	}
	name, err := proc.Name()
	if err != nil {
		name = fmt.Sprintf("pid-%d", koid)
	}
	return newHostProcess(s, koid, name), nil
}

// Launch implements sysapi.SystemInterface. The child runs detached
// from the agent's stdio.
func (s *System) Launch(argv []string) (sysapi.Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("launch: empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %q: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	s.logger.Info().Str("binary", argv[0]).Int("pid", pid).Msg("Launched process")

	// Reap the child when it exits so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()

	return newHostProcess(s, sysapi.Koid(pid), argv[0]), nil
}

// HardwareBreakpointCount implements sysapi.SystemInterface.
func (s *System) HardwareBreakpointCount() int {
	return sysapi.DefaultHardwareBreakpointSlots(runtime.GOARCH)
}

// HardwareWatchpointCount implements sysapi.SystemInterface.
func (s *System) HardwareWatchpointCount() int {
	return sysapi.DefaultHardwareWatchpointSlots(runtime.GOARCH)
}

// NumCPUs implements sysapi.SystemInterface.
func (s *System) NumCPUs() int { return runtime.NumCPU() }

// TotalMemoryMB implements sysapi.SystemInterface.
func (s *System) TotalMemoryMB() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Total >> 20
}

// Arch implements sysapi.SystemInterface.
func (s *System) Arch() string { return runtime.GOARCH }

// rootJob exposes the host process table as a single flat job.
type rootJob struct {
	sys *System

	mu       sync.Mutex
	watchers []func(sysapi.Process)
	known    map[sysapi.Koid]bool
	polling  bool
}

// Koid implements sysapi.Job. Koid 1 mirrors init owning every process.
func (j *rootJob) Koid() sysapi.Koid { return 1 }

// Name implements sysapi.Job.
func (j *rootJob) Name() string { return "host" }

// ChildJobs implements sysapi.Job. Linux has no nested jobs.
func (j *rootJob) ChildJobs() []sysapi.Job { return nil }

// Processes implements sysapi.Job.
func (j *rootJob) Processes() []sysapi.Process {
	pids, err := process.Pids()
	if err != nil {
		j.sys.logger.Warn().Err(err).Msg("Failed to list processes")
		return nil
	}
	out := make([]sysapi.Process, 0, len(pids))
	for _, pid := range pids {
		proc, err := j.sys.Process(sysapi.Koid(pid))
		if err != nil {
			continue
		}
		out = append(out, proc)
	}
	return out
}

// WatchProcessStarting implements sysapi.Job by polling the process
// table. The first watcher starts the poll goroutine.
func (j *rootJob) WatchProcessStarting(fn func(sysapi.Process)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.watchers = append(j.watchers, fn)
	if j.polling {
		return
	}
	j.polling = true
	j.known = make(map[sysapi.Koid]bool)
	if pids, err := process.Pids(); err == nil {
		for _, pid := range pids {
			j.known[sysapi.Koid(pid)] = true
		}
	}
	go j.poll()
}

func (j *rootJob) poll() {
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		pids, err := process.Pids()
		if err != nil {
			continue
		}

		j.mu.Lock()
		seen := make(map[sysapi.Koid]bool, len(pids))
		var started []sysapi.Koid
		for _, pid := range pids {
			koid := sysapi.Koid(pid)
			seen[koid] = true
			if !j.known[koid] {
				started = append(started, koid)
			}
		}
		j.known = seen
		watchers := make([]func(sysapi.Process), len(j.watchers))
		copy(watchers, j.watchers)
		j.mu.Unlock()

		for _, koid := range started {
			proc, err := j.sys.Process(koid)
			if err != nil {
				continue
			}
			for _, fn := range watchers {
				fn(proc)
			}
		}
	}
}
