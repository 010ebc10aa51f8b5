package mocksys

import (
	"fmt"

	"github.com/remora-mesh/remora/internal/sysapi"
)

// Thread implements sysapi.Thread over scripted state.
type Thread struct {
	proc *Process
	koid sysapi.Koid
	name string

	suspendCount  int
	regs          map[uint32][]byte
	hwBreakpoints map[uint64]bool
	watchpoints   map[sysapi.AddressRange]bool
}

// Koid implements sysapi.Thread.
func (t *Thread) Koid() sysapi.Koid { return t.koid }

// Name implements sysapi.Thread.
func (t *Thread) Name() string { return t.name }

// Suspend implements sysapi.Thread.
func (t *Thread) Suspend() error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	t.suspendCount++
	return nil
}

// Resume implements sysapi.Thread.
func (t *Thread) Resume() error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	if t.suspendCount > 0 {
		t.suspendCount--
	}
	return nil
}

// ReadRegisters implements sysapi.Thread.
func (t *Thread) ReadRegisters() ([]sysapi.RegisterValue, error) {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	out := make([]sysapi.RegisterValue, 0, len(t.regs))
	for id, val := range t.regs {
		v := make([]byte, len(val))
		copy(v, val)
		out = append(out, sysapi.RegisterValue{ID: id, Value: v})
	}
	return out, nil
}

// WriteRegisters implements sysapi.Thread.
func (t *Thread) WriteRegisters(regs []sysapi.RegisterValue) error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	for _, r := range regs {
		v := make([]byte, len(r.Value))
		copy(v, r.Value)
		t.regs[r.ID] = v
	}
	return nil
}

// InstallHardwareBreakpoint implements sysapi.Thread, enforcing the
// system's slot budget. Installing the same address twice is a no-op.
func (t *Thread) InstallHardwareBreakpoint(address uint64) error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	if t.hwBreakpoints[address] {
		return nil
	}
	if len(t.hwBreakpoints) >= t.proc.sys.bpSlots {
		return fmt.Errorf("breakpoint %#x: %w", address, sysapi.ErrNoHardwareSlots)
	}
	t.hwBreakpoints[address] = true
	return nil
}

// RemoveHardwareBreakpoint implements sysapi.Thread.
func (t *Thread) RemoveHardwareBreakpoint(address uint64) error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	delete(t.hwBreakpoints, address)
	return nil
}

// InstallWatchpoint implements sysapi.Thread, enforcing the system's
// watchpoint slot budget.
func (t *Thread) InstallWatchpoint(rng sysapi.AddressRange) error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	if t.watchpoints[rng] {
		return nil
	}
	if len(t.watchpoints) >= t.proc.sys.wpSlots {
		return fmt.Errorf("watchpoint %#x-%#x: %w", rng.Begin, rng.End, sysapi.ErrNoHardwareSlots)
	}
	t.watchpoints[rng] = true
	return nil
}

// RemoveWatchpoint implements sysapi.Thread.
func (t *Thread) RemoveWatchpoint(rng sysapi.AddressRange) error {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	delete(t.watchpoints, rng)
	return nil
}

// SetRegister scripts a register value for ReadRegisters.
func (t *Thread) SetRegister(id uint32, value []byte) {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	t.regs[id] = v
}

// HardwareBreakpointCount returns how many hardware breakpoints are
// installed on this thread.
func (t *Thread) HardwareBreakpointCount() int {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	return len(t.hwBreakpoints)
}

// WatchpointCount returns how many watchpoints are installed on this
// thread.
func (t *Thread) WatchpointCount() int {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	return len(t.watchpoints)
}

// SuspendCount returns how many outstanding suspends this thread has.
func (t *Thread) SuspendCount() int {
	t.proc.sys.mu.Lock()
	defer t.proc.sys.mu.Unlock()
	return t.suspendCount
}
