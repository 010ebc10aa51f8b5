// Package process tracks the per-process runtime state the agent needs:
// threads and their run states, and the concrete installation of software
// patches, hardware slots and watchpoints that back logical breakpoints.
package process

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/debug/breakpoint"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// softwareInstall is one patched break instruction shared by every
// logical breakpoint at the address.
type softwareInstall struct {
	original []byte
	owners   map[uint32]*breakpoint.Breakpoint
}

// hardwareInstall is one claimed debug-register address, installed on
// every thread.
type hardwareInstall struct {
	owners map[uint32]*breakpoint.Breakpoint
}

// watchpointInstall is one claimed watchpoint range, installed on every
// thread.
type watchpointInstall struct {
	owners map[uint32]*breakpoint.Breakpoint
}

// DebuggedProcess owns a tracked process's runtime state. It is mutated
// only by the owning agent; no internal locking.
type DebuggedProcess struct {
	proc sysapi.Process
	koid sysapi.Koid
	name string

	breakInstr []byte

	threads map[sysapi.Koid]*DebuggedThread

	softwareBPs map[uint64]*softwareInstall
	hardwareBPs map[uint64]*hardwareInstall
	watchpoints map[sysapi.AddressRange]*watchpointInstall

	logger zerolog.Logger
}

// New begins tracking a process, snapshotting its current threads. The
// break instruction comes from the system's architecture and is patched
// in for software breakpoints.
func New(proc sysapi.Process, breakInstr []byte, logger zerolog.Logger) *DebuggedProcess {
	p := &DebuggedProcess{
		proc:        proc,
		koid:        proc.Koid(),
		name:        proc.Name(),
		breakInstr:  breakInstr,
		threads:     make(map[sysapi.Koid]*DebuggedThread),
		softwareBPs: make(map[uint64]*softwareInstall),
		hardwareBPs: make(map[uint64]*hardwareInstall),
		watchpoints: make(map[sysapi.AddressRange]*watchpointInstall),
		logger: logger.With().
			Str("component", "process").
			Uint64("process_koid", uint64(proc.Koid())).
			Logger(),
	}
	for _, t := range proc.Threads() {
		p.threads[t.Koid()] = newDebuggedThread(t)
	}
	return p
}

// Koid returns the process koid.
func (p *DebuggedProcess) Koid() sysapi.Koid { return p.koid }

// Name returns the process name.
func (p *DebuggedProcess) Name() string { return p.name }

// Handle returns the underlying sysapi process.
func (p *DebuggedProcess) Handle() sysapi.Process { return p.proc }

// Threads returns the tracked threads in koid order-independent form.
func (p *DebuggedProcess) Threads() []*DebuggedThread {
	out := make([]*DebuggedThread, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	return out
}

// Thread looks up one tracked thread.
func (p *DebuggedProcess) Thread(koid sysapi.Koid) (*DebuggedThread, bool) {
	t, ok := p.threads[koid]
	return t, ok
}

// OnThreadStarting begins tracking a new thread.
func (p *DebuggedProcess) OnThreadStarting(t sysapi.Thread) *DebuggedThread {
	dt := newDebuggedThread(t)
	p.threads[t.Koid()] = dt
	return dt
}

// OnThreadExiting stops tracking a thread. Returns false if the thread
// was unknown.
func (p *DebuggedProcess) OnThreadExiting(koid sysapi.Koid) bool {
	if _, ok := p.threads[koid]; !ok {
		return false
	}
	delete(p.threads, koid)
	return true
}

// Pause suspends every thread. Already-stopped threads are untouched.
func (p *DebuggedProcess) Pause() error {
	for _, t := range p.threads {
		if err := t.Pause(); err != nil {
			return err
		}
	}
	return nil
}

// Resume resumes every thread. Already-running threads are untouched.
func (p *DebuggedProcess) Resume() error {
	for _, t := range p.threads {
		if err := t.Resume(); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSoftwareBreakpoint patches the break instruction at address,
// keeping the original bytes for restore. Multiple logical breakpoints
// share one patch; repeated registration by the same breakpoint is a
// no-op.
func (p *DebuggedProcess) RegisterSoftwareBreakpoint(bp *breakpoint.Breakpoint, address uint64) error {
	if install, ok := p.softwareBPs[address]; ok {
		install.owners[bp.Settings().ID] = bp
		return nil
	}

	original := make([]byte, len(p.breakInstr))
	if _, err := p.proc.ReadMemory(address, original); err != nil {
		return fmt.Errorf("software breakpoint at %#x: %w", address, err)
	}
	if _, err := p.proc.WriteMemory(address, p.breakInstr); err != nil {
		return fmt.Errorf("software breakpoint at %#x: %w", address, err)
	}

	p.softwareBPs[address] = &softwareInstall{
		original: original,
		owners:   map[uint32]*breakpoint.Breakpoint{bp.Settings().ID: bp},
	}
	return nil
}

// UnregisterSoftwareBreakpoint removes one logical breakpoint from the
// patch at address, restoring the original bytes when the last owner
// leaves.
func (p *DebuggedProcess) UnregisterSoftwareBreakpoint(bp *breakpoint.Breakpoint, address uint64) {
	install, ok := p.softwareBPs[address]
	if !ok {
		return
	}
	delete(install.owners, bp.Settings().ID)
	if len(install.owners) > 0 {
		return
	}
	if _, err := p.proc.WriteMemory(address, install.original); err != nil {
		p.logger.Warn().Err(err).
			Str("address", fmt.Sprintf("%#x", address)).
			Msg("Failed to restore patched instruction")
	}
	delete(p.softwareBPs, address)
}

// RegisterHardwareBreakpoint claims a debug-register slot for address on
// every thread. On any per-thread failure the partial installation is
// unwound and the error returned.
func (p *DebuggedProcess) RegisterHardwareBreakpoint(bp *breakpoint.Breakpoint, address uint64) error {
	if install, ok := p.hardwareBPs[address]; ok {
		install.owners[bp.Settings().ID] = bp
		return nil
	}

	var installed []sysapi.Thread
	for _, t := range p.threads {
		if err := t.Handle().InstallHardwareBreakpoint(address); err != nil {
			for _, done := range installed {
				if rerr := done.RemoveHardwareBreakpoint(address); rerr != nil {
					p.logger.Warn().Err(rerr).Msg("Failed to unwind hardware breakpoint")
				}
			}
			return fmt.Errorf("hardware breakpoint at %#x: %w", address, err)
		}
		installed = append(installed, t.Handle())
	}

	p.hardwareBPs[address] = &hardwareInstall{
		owners: map[uint32]*breakpoint.Breakpoint{bp.Settings().ID: bp},
	}
	return nil
}

// UnregisterHardwareBreakpoint releases the slot at address once the
// last owner leaves.
func (p *DebuggedProcess) UnregisterHardwareBreakpoint(bp *breakpoint.Breakpoint, address uint64) {
	install, ok := p.hardwareBPs[address]
	if !ok {
		return
	}
	delete(install.owners, bp.Settings().ID)
	if len(install.owners) > 0 {
		return
	}
	for _, t := range p.threads {
		if err := t.Handle().RemoveHardwareBreakpoint(address); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to remove hardware breakpoint")
		}
	}
	delete(p.hardwareBPs, address)
}

// RegisterWatchpoint claims a watchpoint slot for the range on every
// thread, unwinding on partial failure.
func (p *DebuggedProcess) RegisterWatchpoint(bp *breakpoint.Breakpoint, rng sysapi.AddressRange) error {
	if install, ok := p.watchpoints[rng]; ok {
		install.owners[bp.Settings().ID] = bp
		return nil
	}

	var installed []sysapi.Thread
	for _, t := range p.threads {
		if err := t.Handle().InstallWatchpoint(rng); err != nil {
			for _, done := range installed {
				if rerr := done.RemoveWatchpoint(rng); rerr != nil {
					p.logger.Warn().Err(rerr).Msg("Failed to unwind watchpoint")
				}
			}
			return fmt.Errorf("watchpoint %#x-%#x: %w", rng.Begin, rng.End, err)
		}
		installed = append(installed, t.Handle())
	}

	p.watchpoints[rng] = &watchpointInstall{
		owners: map[uint32]*breakpoint.Breakpoint{bp.Settings().ID: bp},
	}
	return nil
}

// UnregisterWatchpoint releases the watchpoint slot once the last owner
// leaves.
func (p *DebuggedProcess) UnregisterWatchpoint(bp *breakpoint.Breakpoint, rng sysapi.AddressRange) {
	install, ok := p.watchpoints[rng]
	if !ok {
		return
	}
	delete(install.owners, bp.Settings().ID)
	if len(install.owners) > 0 {
		return
	}
	for _, t := range p.threads {
		if err := t.Handle().RemoveWatchpoint(rng); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to remove watchpoint")
		}
	}
	delete(p.watchpoints, rng)
}

// BreakpointsAt returns every logical breakpoint whose installation in
// this process covers the address: exact matches for code breakpoints
// and range containment for watchpoints.
func (p *DebuggedProcess) BreakpointsAt(address uint64) []*breakpoint.Breakpoint {
	seen := make(map[uint32]bool)
	var out []*breakpoint.Breakpoint

	collect := func(owners map[uint32]*breakpoint.Breakpoint) {
		for id, bp := range owners {
			if !seen[id] {
				seen[id] = true
				out = append(out, bp)
			}
		}
	}

	if install, ok := p.softwareBPs[address]; ok {
		collect(install.owners)
	}
	if install, ok := p.hardwareBPs[address]; ok {
		collect(install.owners)
	}
	for rng, install := range p.watchpoints {
		if rng.Contains(address) {
			collect(install.owners)
		}
	}
	return out
}

// Teardown restores every software patch and releases every hardware
// slot, used on detach while the process keeps running.
func (p *DebuggedProcess) Teardown() {
	for address, install := range p.softwareBPs {
		if _, err := p.proc.WriteMemory(address, install.original); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to restore patched instruction on teardown")
		}
		delete(p.softwareBPs, address)
	}
	for address := range p.hardwareBPs {
		for _, t := range p.threads {
			_ = t.Handle().RemoveHardwareBreakpoint(address)
		}
		delete(p.hardwareBPs, address)
	}
	for rng := range p.watchpoints {
		for _, t := range p.threads {
			_ = t.Handle().RemoveWatchpoint(rng)
		}
		delete(p.watchpoints, rng)
	}
}
