// Package sysapi abstracts the operating system's process, thread and
// memory primitives behind narrow interfaces. The debugging core only ever
// talks to these interfaces; production code wires in the host-backed
// implementation (hostsys) and tests wire in a scriptable one (mocksys).
package sysapi

import "errors"

// Koid uniquely identifies a job, process or thread for the lifetime of
// the object. Koids are never reused while the object is alive.
type Koid uint64

// Sentinel errors returned by SystemInterface implementations. The agent
// maps these onto wire status codes.
var (
	// ErrNotFound reports that no live object has the requested koid.
	ErrNotFound = errors.New("object not found")

	// ErrNotMapped reports a memory access outside any mapped region.
	ErrNotMapped = errors.New("address not mapped")

	// ErrNoHardwareSlots reports that the debug-register budget is
	// exhausted.
	ErrNoHardwareSlots = errors.New("no hardware slots available")

	// ErrNotSupported reports an operation the backing system cannot
	// perform.
	ErrNotSupported = errors.New("operation not supported")
)

// AddressRange is a half-open [Begin, End) range of addresses, used by
// watchpoints.
type AddressRange struct {
	Begin uint64
	End   uint64
}

// Size returns the number of bytes covered by the range.
func (r AddressRange) Size() uint64 {
	if r.End <= r.Begin {
		return 0
	}
	return r.End - r.Begin
}

// Contains reports whether addr falls inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.Begin && addr < r.End
}

// Module describes one loaded binary image in a process.
type Module struct {
	Name    string
	Base    uint64
	BuildID string
}

// AddressRegion describes one mapped region of a process address space.
type AddressRegion struct {
	Name string
	Base uint64
	Size uint64
}

// RegisterValue is one CPU register of a stopped thread. The meaning of
// ID is architecture-specific; values are raw little-endian bytes.
type RegisterValue struct {
	ID    uint32
	Value []byte
}

// ExceptionKind classifies a hardware or software exception raised by a
// target thread.
type ExceptionKind int

const (
	ExceptionNone ExceptionKind = iota
	ExceptionSoftwareBreakpoint
	ExceptionHardwareBreakpoint
	ExceptionWatchpoint
	ExceptionPageFault
	ExceptionGeneral
)

// String implements fmt.Stringer.
func (k ExceptionKind) String() string {
	switch k {
	case ExceptionNone:
		return "none"
	case ExceptionSoftwareBreakpoint:
		return "software breakpoint"
	case ExceptionHardwareBreakpoint:
		return "hardware breakpoint"
	case ExceptionWatchpoint:
		return "watchpoint"
	case ExceptionPageFault:
		return "page fault"
	case ExceptionGeneral:
		return "general"
	}
	return "unknown"
}

// Exception carries the details of one exception event.
type Exception struct {
	ThreadKoid Koid
	Kind       ExceptionKind
	Address    uint64
}

// ProcessEventKind tags ProcessEvent. The variant set is closed; consumers
// switch exhaustively.
type ProcessEventKind int

const (
	EventThreadStarting ProcessEventKind = iota
	EventThreadExiting
	EventException
	EventProcessExiting
)

// ProcessEvent is one asynchronous event observed on a watched process.
// Only the fields for the tagged variant are set.
type ProcessEvent struct {
	Kind ProcessEventKind

	// Thread is set for EventThreadStarting.
	Thread Thread

	// ThreadKoid is set for EventThreadExiting.
	ThreadKoid Koid

	// Exception is set for EventException.
	Exception Exception

	// ReturnCode is set for EventProcessExiting.
	ReturnCode int64
}

// SystemInterface is the root handle onto the host system. Implementations
// must be safe for concurrent use.
type SystemInterface interface {
	// RootJob returns the job the agent was given at startup. All
	// filtering and launching happens under it.
	RootJob() Job

	// Process resolves a live process by koid. Returns ErrNotFound if
	// no such process exists.
	Process(koid Koid) (Process, error)

	// Launch spawns a raw executable under the root job and returns
	// its process handle.
	Launch(argv []string) (Process, error)

	// HardwareBreakpointCount returns the per-thread debug-register
	// budget for execution breakpoints. Resolved once at startup.
	HardwareBreakpointCount() int

	// HardwareWatchpointCount returns the per-thread budget for write
	// watchpoints.
	HardwareWatchpointCount() int

	// NumCPUs reports the logical CPU count.
	NumCPUs() int

	// TotalMemoryMB reports the physical memory size in MiB.
	TotalMemoryMB() uint64

	// Arch reports the CPU architecture (GOARCH naming).
	Arch() string
}

// Job is one node of the hierarchical process-container tree.
type Job interface {
	Koid() Koid
	Name() string

	// ChildJobs returns the jobs nested directly under this one.
	ChildJobs() []Job

	// Processes returns the processes owned directly by this job.
	Processes() []Process

	// WatchProcessStarting registers fn to be called for every process
	// that starts under this job, including inside nested jobs. The
	// callback may be invoked from an arbitrary goroutine.
	WatchProcessStarting(fn func(Process))
}

// Process is a handle onto one running program instance.
type Process interface {
	Koid() Koid
	Name() string

	Threads() []Thread
	Thread(koid Koid) (Thread, error)

	// ReadMemory copies len(buf) bytes from the target address space.
	// Returns ErrNotMapped when the region is not readable.
	ReadMemory(address uint64, buf []byte) (int, error)

	// WriteMemory copies data into the target address space.
	WriteMemory(address uint64, data []byte) (int, error)

	Suspend() error
	Resume() error
	Kill() error

	Modules() ([]Module, error)
	AddressSpace() ([]AddressRegion, error)

	// WatchEvents registers fn for thread lifecycle, exception and exit
	// events on this process. Events for one process are delivered in
	// the order they occurred.
	WatchEvents(fn func(ProcessEvent))
}

// Thread is a handle onto one thread of a process.
type Thread interface {
	Koid() Koid
	Name() string

	Suspend() error
	Resume() error

	ReadRegisters() ([]RegisterValue, error)
	WriteRegisters(regs []RegisterValue) error

	// InstallHardwareBreakpoint claims a debug-register slot for the
	// given address. Returns ErrNoHardwareSlots when the budget is
	// exhausted.
	InstallHardwareBreakpoint(address uint64) error
	RemoveHardwareBreakpoint(address uint64) error

	// InstallWatchpoint claims a slot watching writes to the range.
	InstallWatchpoint(rng AddressRange) error
	RemoveWatchpoint(rng AddressRange) error
}
