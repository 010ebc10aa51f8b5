package mocksys

import (
	"fmt"

	"github.com/remora-mesh/remora/internal/sysapi"
)

type memRegion struct {
	name string
	base uint64
	data []byte
}

// Process implements sysapi.Process over scripted state.
type Process struct {
	sys  *System
	koid sysapi.Koid
	name string
	job  *Job

	threads     map[sysapi.Koid]*Thread
	threadOrder []sysapi.Koid
	regions     []*memRegion
	modules     []sysapi.Module
	eventFns    []func(sysapi.ProcessEvent)

	suspendCount int
	killed       bool
	exited       bool
}

func newProcess(s *System, koid sysapi.Koid, name string) *Process {
	return &Process{
		sys:     s,
		koid:    koid,
		name:    name,
		threads: make(map[sysapi.Koid]*Thread),
	}
}

// Koid implements sysapi.Process.
func (p *Process) Koid() sysapi.Koid { return p.koid }

// Name implements sysapi.Process.
func (p *Process) Name() string { return p.name }

// Threads implements sysapi.Process.
func (p *Process) Threads() []sysapi.Thread {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	out := make([]sysapi.Thread, 0, len(p.threadOrder))
	for _, koid := range p.threadOrder {
		out = append(out, p.threads[koid])
	}
	return out
}

// Thread implements sysapi.Process.
func (p *Process) Thread(koid sysapi.Koid) (sysapi.Thread, error) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	t, ok := p.threads[koid]
	if !ok {
		return nil, fmt.Errorf("thread %d: %w", koid, sysapi.ErrNotFound)
	}
	return t, nil
}

// ReadMemory implements sysapi.Process.
func (p *Process) ReadMemory(address uint64, buf []byte) (int, error) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	r := p.regionFor(address, uint64(len(buf)))
	if r == nil {
		return 0, fmt.Errorf("read %#x: %w", address, sysapi.ErrNotMapped)
	}
	off := address - r.base
	return copy(buf, r.data[off:]), nil
}

// WriteMemory implements sysapi.Process.
func (p *Process) WriteMemory(address uint64, data []byte) (int, error) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	r := p.regionFor(address, uint64(len(data)))
	if r == nil {
		return 0, fmt.Errorf("write %#x: %w", address, sysapi.ErrNotMapped)
	}
	off := address - r.base
	return copy(r.data[off:], data), nil
}

func (p *Process) regionFor(address, size uint64) *memRegion {
	for _, r := range p.regions {
		if address >= r.base && address+size <= r.base+uint64(len(r.data)) {
			return r
		}
	}
	return nil
}

// Suspend implements sysapi.Process.
func (p *Process) Suspend() error {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	p.suspendCount++
	return nil
}

// Resume implements sysapi.Process.
func (p *Process) Resume() error {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	if p.suspendCount > 0 {
		p.suspendCount--
	}
	return nil
}

// Kill implements sysapi.Process. The process emits a process-exiting
// event with return code -1 and leaves the tree.
func (p *Process) Kill() error {
	p.sys.mu.Lock()
	p.killed = true
	p.sys.mu.Unlock()
	p.Exit(-1)
	return nil
}

// Modules implements sysapi.Process.
func (p *Process) Modules() ([]sysapi.Module, error) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	out := make([]sysapi.Module, len(p.modules))
	copy(out, p.modules)
	return out, nil
}

// AddressSpace implements sysapi.Process.
func (p *Process) AddressSpace() ([]sysapi.AddressRegion, error) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	out := make([]sysapi.AddressRegion, 0, len(p.regions))
	for _, r := range p.regions {
		out = append(out, sysapi.AddressRegion{
			Name: r.name,
			Base: r.base,
			Size: uint64(len(r.data)),
		})
	}
	return out, nil
}

// WatchEvents implements sysapi.Process.
func (p *Process) WatchEvents(fn func(sysapi.ProcessEvent)) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	p.eventFns = append(p.eventFns, fn)
}

// Scripting surface below: builders and event injection for tests.

// AddMemoryRegion maps size zero-filled bytes at base.
func (p *Process) AddMemoryRegion(name string, base, size uint64) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	p.regions = append(p.regions, &memRegion{name: name, base: base, data: make([]byte, size)})
}

// AddModule records a loaded module for Modules replies.
func (p *Process) AddModule(name string, base uint64, buildID string) {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	p.modules = append(p.modules, sysapi.Module{Name: name, Base: base, BuildID: buildID})
}

// AddThread creates a thread without emitting a thread-starting event.
func (p *Process) AddThread(koid sysapi.Koid, name string) *Thread {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	t := &Thread{
		proc:          p,
		koid:          koid,
		name:          name,
		regs:          make(map[uint32][]byte),
		hwBreakpoints: make(map[uint64]bool),
		watchpoints:   make(map[sysapi.AddressRange]bool),
	}
	p.threads[koid] = t
	p.threadOrder = append(p.threadOrder, koid)
	return t
}

// StartThread creates a thread and emits a thread-starting event.
func (p *Process) StartThread(koid sysapi.Koid, name string) *Thread {
	t := p.AddThread(koid, name)
	p.emit(sysapi.ProcessEvent{Kind: sysapi.EventThreadStarting, Thread: t})
	return t
}

// ExitThread removes a thread and emits a thread-exiting event.
func (p *Process) ExitThread(koid sysapi.Koid) {
	p.sys.mu.Lock()
	delete(p.threads, koid)
	for i, k := range p.threadOrder {
		if k == koid {
			p.threadOrder = append(p.threadOrder[:i], p.threadOrder[i+1:]...)
			break
		}
	}
	p.sys.mu.Unlock()
	p.emit(sysapi.ProcessEvent{Kind: sysapi.EventThreadExiting, ThreadKoid: koid})
}

// EmitException injects an exception event on the given thread.
func (p *Process) EmitException(threadKoid sysapi.Koid, kind sysapi.ExceptionKind, address uint64) {
	p.emit(sysapi.ProcessEvent{
		Kind: sysapi.EventException,
		Exception: sysapi.Exception{
			ThreadKoid: threadKoid,
			Kind:       kind,
			Address:    address,
		},
	})
}

// Exit emits a process-exiting event and removes the process from the
// tree.
func (p *Process) Exit(code int64) {
	p.sys.mu.Lock()
	if p.exited {
		p.sys.mu.Unlock()
		return
	}
	p.exited = true
	p.sys.mu.Unlock()

	p.sys.removeProcess(p)
	p.emit(sysapi.ProcessEvent{Kind: sysapi.EventProcessExiting, ReturnCode: code})
}

// SuspendCount returns how many outstanding suspends this process has.
func (p *Process) SuspendCount() int {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	return p.suspendCount
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	return p.killed
}

// MemoryAt returns a copy of size bytes at address for assertions,
// bypassing the mapped-region error path.
func (p *Process) MemoryAt(address, size uint64) []byte {
	buf := make([]byte, size)
	n, _ := p.ReadMemory(address, buf)
	return buf[:n]
}

func (p *Process) emit(ev sysapi.ProcessEvent) {
	p.sys.mu.Lock()
	fns := make([]func(sysapi.ProcessEvent), len(p.eventFns))
	copy(fns, p.eventFns)
	p.sys.mu.Unlock()

	// Deliver outside the lock; handlers re-enter the mock.
	for _, fn := range fns {
		fn(ev)
	}
}
