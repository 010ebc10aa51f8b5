package hostsys

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/remora-mesh/remora/internal/sysapi"
)

// hostThread implements sysapi.Thread for one tid. Register and
// debug-register access needs ptrace attachment and is not supported.
type hostThread struct {
	proc *hostProcess
	tid  sysapi.Koid
}

func newHostThread(proc *hostProcess, tid sysapi.Koid) *hostThread {
	return &hostThread{proc: proc, tid: tid}
}

// Koid implements sysapi.Thread.
func (t *hostThread) Koid() sysapi.Koid { return t.tid }

// Name implements sysapi.Thread from /proc/<pid>/task/<tid>/comm.
func (t *hostThread) Name() string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/comm", t.proc.pid, t.tid))
	if err != nil {
		return fmt.Sprintf("tid-%d", t.tid)
	}
	name := string(data)
	if len(name) > 0 && name[len(name)-1] == '\n' {
		name = name[:len(name)-1]
	}
	return name
}

// Suspend implements sysapi.Thread. Linux signals stop the whole thread
// group; tgkill with SIGSTOP is the closest per-thread approximation.
func (t *hostThread) Suspend() error {
	if err := unix.Tgkill(int(t.proc.pid), int(t.tid), unix.SIGSTOP); err != nil {
		return fmt.Errorf("suspend thread %d: %w", t.tid, err)
	}
	return nil
}

// Resume implements sysapi.Thread.
func (t *hostThread) Resume() error {
	if err := unix.Tgkill(int(t.proc.pid), int(t.tid), unix.SIGCONT); err != nil {
		return fmt.Errorf("resume thread %d: %w", t.tid, err)
	}
	return nil
}

// ReadRegisters implements sysapi.Thread.
func (t *hostThread) ReadRegisters() ([]sysapi.RegisterValue, error) {
	return nil, fmt.Errorf("registers for thread %d: %w", t.tid, sysapi.ErrNotSupported)
}

// WriteRegisters implements sysapi.Thread.
func (t *hostThread) WriteRegisters(regs []sysapi.RegisterValue) error {
	return fmt.Errorf("registers for thread %d: %w", t.tid, sysapi.ErrNotSupported)
}

// InstallHardwareBreakpoint implements sysapi.Thread.
func (t *hostThread) InstallHardwareBreakpoint(address uint64) error {
	return fmt.Errorf("hardware breakpoint at %#x: %w", address, sysapi.ErrNotSupported)
}

// RemoveHardwareBreakpoint implements sysapi.Thread.
func (t *hostThread) RemoveHardwareBreakpoint(address uint64) error {
	return fmt.Errorf("hardware breakpoint at %#x: %w", address, sysapi.ErrNotSupported)
}

// InstallWatchpoint implements sysapi.Thread.
func (t *hostThread) InstallWatchpoint(rng sysapi.AddressRange) error {
	return fmt.Errorf("watchpoint at %#x: %w", rng.Begin, sysapi.ErrNotSupported)
}

// RemoveWatchpoint implements sysapi.Thread.
func (t *hostThread) RemoveWatchpoint(rng sysapi.AddressRange) error {
	return fmt.Errorf("watchpoint at %#x: %w", rng.Begin, sysapi.ErrNotSupported)
}
