package wire

// BreakpointKind distinguishes how a breakpoint is implemented.
type BreakpointKind uint32

const (
	BreakpointSoftware BreakpointKind = iota
	BreakpointHardware
	BreakpointWatchpoint
)

// String implements fmt.Stringer.
func (k BreakpointKind) String() string {
	switch k {
	case BreakpointSoftware:
		return "software"
	case BreakpointHardware:
		return "hardware"
	case BreakpointWatchpoint:
		return "watchpoint"
	}
	return "unknown"
}

// ThreadState is a thread's run state.
type ThreadState uint32

const (
	ThreadRunning ThreadState = iota
	ThreadStopped
	ThreadStepping
)

// String implements fmt.Stringer.
func (s ThreadState) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadStopped:
		return "stopped"
	case ThreadStepping:
		return "stepping"
	}
	return "unknown"
}

// ProcessRecord describes one tracked process.
type ProcessRecord struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint,omitempty"`
	ThreadCount uint32 `cbor:"3,keyasint,omitempty"`
}

// ThreadRecord describes one thread of a tracked process.
type ThreadRecord struct {
	ProcessKoid uint64      `cbor:"1,keyasint"`
	ThreadKoid  uint64      `cbor:"2,keyasint"`
	Name        string      `cbor:"3,keyasint,omitempty"`
	State       ThreadState `cbor:"4,keyasint"`
}

// Module describes one loaded binary image.
type Module struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	Base    uint64 `cbor:"2,keyasint"`
	BuildID string `cbor:"3,keyasint,omitempty"`
}

// AddressRegion describes one mapped region of a process address space.
type AddressRegion struct {
	Name string `cbor:"1,keyasint,omitempty"`
	Base uint64 `cbor:"2,keyasint"`
	Size uint64 `cbor:"3,keyasint"`
}

// Register is one CPU register value.
type Register struct {
	ID    uint32 `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// AddressRange is a half-open [Begin, End) range, used by watchpoint
// locations.
type AddressRange struct {
	Begin uint64 `cbor:"1,keyasint"`
	End   uint64 `cbor:"2,keyasint"`
}

// BreakpointLocation binds a breakpoint to one process. Code breakpoints
// set Address; watchpoints set Range.
type BreakpointLocation struct {
	ProcessKoid uint64       `cbor:"1,keyasint"`
	Address     uint64       `cbor:"2,keyasint,omitempty"`
	Range       AddressRange `cbor:"3,keyasint,omitempty"`
}

// BreakpointSettings is the client-controlled definition of a logical
// breakpoint. The ID is chosen by the client and is unique across the
// whole agent.
type BreakpointSettings struct {
	ID        uint32               `cbor:"1,keyasint"`
	Kind      BreakpointKind       `cbor:"2,keyasint"`
	OneShot   bool                 `cbor:"3,keyasint,omitempty"`
	Locations []BreakpointLocation `cbor:"4,keyasint"`
}

// BreakpointStats reports hit accounting for one breakpoint. ShouldDelete
// tells the client the breakpoint will not survive the event carrying it.
type BreakpointStats struct {
	ID           uint32 `cbor:"1,keyasint"`
	HitCount     uint32 `cbor:"2,keyasint"`
	ShouldDelete bool   `cbor:"3,keyasint,omitempty"`
}

// ProcessTreeRecordType tags a node of the process tree.
type ProcessTreeRecordType uint32

const (
	ProcessTreeJob ProcessTreeRecordType = iota
	ProcessTreeProcess
)

// ProcessTreeRecord is one node of the job/process tree returned by
// ProcessTree.
type ProcessTreeRecord struct {
	Type     ProcessTreeRecordType `cbor:"1,keyasint"`
	Koid     uint64                `cbor:"2,keyasint"`
	Name     string                `cbor:"3,keyasint,omitempty"`
	Children []ProcessTreeRecord   `cbor:"4,keyasint,omitempty"`
}

// ExceptionKind classifies an exception notification.
type ExceptionKind uint32

const (
	ExceptionKindNone ExceptionKind = iota
	ExceptionKindSoftwareBreakpoint
	ExceptionKindHardwareBreakpoint
	ExceptionKindWatchpoint
	ExceptionKindPageFault
	ExceptionKindGeneral
)

// String implements fmt.Stringer.
func (k ExceptionKind) String() string {
	switch k {
	case ExceptionKindNone:
		return "none"
	case ExceptionKindSoftwareBreakpoint:
		return "software breakpoint"
	case ExceptionKindHardwareBreakpoint:
		return "hardware breakpoint"
	case ExceptionKindWatchpoint:
		return "watchpoint"
	case ExceptionKindPageFault:
		return "page fault"
	case ExceptionKindGeneral:
		return "general"
	}
	return "unknown"
}
