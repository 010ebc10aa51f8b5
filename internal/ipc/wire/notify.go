package wire

// NotifyProcessStarting reports a process the agent began tracking
// because a job filter matched or a component launch completed.
// ComponentID is non-zero for component launches.
type NotifyProcessStarting struct {
	Koid        uint64 `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint,omitempty"`
	ComponentID uint64 `cbor:"3,keyasint,omitempty"`
}

// NotifyProcessExiting reports that a tracked process exited.
type NotifyProcessExiting struct {
	Koid       uint64 `cbor:"1,keyasint"`
	ReturnCode int64  `cbor:"2,keyasint"`
}

// NotifyThreadStarting reports a new thread in a tracked process.
type NotifyThreadStarting struct {
	Record ThreadRecord `cbor:"1,keyasint"`
}

// NotifyThreadExiting reports a thread leaving a tracked process.
type NotifyThreadExiting struct {
	Record ThreadRecord `cbor:"1,keyasint"`
}

// NotifyModules reports the module list of a process, sent when the
// loader has finished mapping the binary.
type NotifyModules struct {
	ProcessKoid uint64   `cbor:"1,keyasint"`
	Modules     []Module `cbor:"2,keyasint,omitempty"`
}

// NotifyException reports a stopped thread. HitBreakpoints carries the
// hit accounting for every logical breakpoint at the exception address;
// a ShouldDelete entry will not survive this notification.
type NotifyException struct {
	ProcessKoid    uint64            `cbor:"1,keyasint"`
	Thread         ThreadRecord      `cbor:"2,keyasint"`
	Kind           ExceptionKind     `cbor:"3,keyasint"`
	Address        uint64            `cbor:"4,keyasint,omitempty"`
	HitBreakpoints []BreakpointStats `cbor:"5,keyasint,omitempty"`
}

// NotifyIOKind tags NotifyIO data.
type NotifyIOKind uint32

const (
	NotifyIOStdout NotifyIOKind = iota
	NotifyIOStderr
)

// NotifyIO forwards captured stdio from a launched component.
type NotifyIO struct {
	ProcessKoid uint64       `cbor:"1,keyasint,omitempty"`
	ComponentID uint64       `cbor:"2,keyasint,omitempty"`
	Kind        NotifyIOKind `cbor:"3,keyasint"`
	Data        []byte       `cbor:"4,keyasint"`
}

// NotifyLogSeverity classifies NotifyLog lines.
type NotifyLogSeverity uint32

const (
	NotifyLogInfo NotifyLogSeverity = iota
	NotifyLogWarn
	NotifyLogError
)

// NotifyLog forwards an agent-side log line the client should surface.
type NotifyLog struct {
	Severity NotifyLogSeverity `cbor:"1,keyasint"`
	Message  string            `cbor:"2,keyasint"`
}
