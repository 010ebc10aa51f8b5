package hostsys

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/remora-mesh/remora/internal/errlib"
	"github.com/remora-mesh/remora/internal/safe"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// hostProcess implements sysapi.Process for one host pid.
type hostProcess struct {
	sys  *System
	pid  sysapi.Koid
	name string
}

func newHostProcess(sys *System, pid sysapi.Koid, name string) *hostProcess {
	return &hostProcess{sys: sys, pid: pid, name: name}
}

// Koid implements sysapi.Process.
func (p *hostProcess) Koid() sysapi.Koid { return p.pid }

// Name implements sysapi.Process.
func (p *hostProcess) Name() string { return p.name }

// Threads implements sysapi.Process via /proc/<pid>/task.
func (p *hostProcess) Threads() []sysapi.Thread {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", p.pid))
	if err != nil {
		return nil
	}
	out := make([]sysapi.Thread, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, newHostThread(p, sysapi.Koid(tid)))
	}
	return out
}

// Thread implements sysapi.Process.
func (p *hostProcess) Thread(koid sysapi.Koid) (sysapi.Thread, error) {
	if _, err := os.Stat(fmt.Sprintf("/proc/%d/task/%d", p.pid, koid)); err != nil {
		return nil, fmt.Errorf("thread %d: %w", koid, sysapi.ErrNotFound)
	}
	return newHostThread(p, koid), nil
}

// ReadMemory implements sysapi.Process through /proc/<pid>/mem.
func (p *hostProcess) ReadMemory(address uint64, buf []byte) (int, error) {
	off, ok := safe.Offset(address)
	if !ok {
		return 0, fmt.Errorf("read %#x in %d: %w", address, p.pid, sysapi.ErrNotMapped)
	}
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", p.pid), os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("open mem for %d: %w", p.pid, err)
	}
	defer errlib.DeferClose(p.sys.logger, f, "close proc file")

	n, err := unix.Pread(int(f.Fd()), buf, off)
	if err != nil {
		return n, fmt.Errorf("read %#x in %d: %w", address, p.pid, sysapi.ErrNotMapped)
	}
	return n, nil
}

// WriteMemory implements sysapi.Process through /proc/<pid>/mem.
func (p *hostProcess) WriteMemory(address uint64, data []byte) (int, error) {
	off, ok := safe.Offset(address)
	if !ok {
		return 0, fmt.Errorf("write %#x in %d: %w", address, p.pid, sysapi.ErrNotMapped)
	}
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", p.pid), os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("open mem for %d: %w", p.pid, err)
	}
	defer errlib.DeferClose(p.sys.logger, f, "close proc file")

	n, err := unix.Pwrite(int(f.Fd()), data, off)
	if err != nil {
		return n, fmt.Errorf("write %#x in %d: %w", address, p.pid, sysapi.ErrNotMapped)
	}
	return n, nil
}

// Suspend implements sysapi.Process with SIGSTOP.
func (p *hostProcess) Suspend() error {
	if err := unix.Kill(int(p.pid), unix.SIGSTOP); err != nil {
		return fmt.Errorf("suspend %d: %w", p.pid, err)
	}
	return nil
}

// Resume implements sysapi.Process with SIGCONT.
func (p *hostProcess) Resume() error {
	if err := unix.Kill(int(p.pid), unix.SIGCONT); err != nil {
		return fmt.Errorf("resume %d: %w", p.pid, err)
	}
	return nil
}

// Kill implements sysapi.Process with SIGKILL.
func (p *hostProcess) Kill() error {
	if err := unix.Kill(int(p.pid), unix.SIGKILL); err != nil {
		return fmt.Errorf("kill %d: %w", p.pid, err)
	}
	return nil
}

// Modules implements sysapi.Process from the file-backed executable
// mappings in /proc/<pid>/maps.
func (p *hostProcess) Modules() ([]sysapi.Module, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, fmt.Errorf("maps for %d: %w", p.pid, err)
	}
	defer errlib.DeferClose(p.sys.logger, f, "close proc file")
	return modulesFromMaps(f)
}

// AddressSpace implements sysapi.Process from /proc/<pid>/maps.
func (p *hostProcess) AddressSpace() ([]sysapi.AddressRegion, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, fmt.Errorf("maps for %d: %w", p.pid, err)
	}
	defer errlib.DeferClose(p.sys.logger, f, "close proc file")
	return parseMaps(f)
}

// WatchEvents implements sysapi.Process. Host event delivery needs
// ptrace scope the agent does not take; the subscription is accepted
// and never fires.
func (p *hostProcess) WatchEvents(fn func(sysapi.ProcessEvent)) {
	p.sys.logger.Debug().
		Uint64("pid", uint64(p.pid)).
		Msg("Process event watching is not available on this backend")
}
