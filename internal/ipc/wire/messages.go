package wire

// HelloRequest opens a session. It carries no data today but keeps a
// version field for future negotiation.
type HelloRequest struct {
	Version uint32 `cbor:"1,keyasint,omitempty"`
}

// HelloReply identifies the agent.
type HelloReply struct {
	Version uint32 `cbor:"1,keyasint"`
	AgentID string `cbor:"2,keyasint"`
	Arch    string `cbor:"3,keyasint"`
}

// StatusRequest asks for a session summary.
type StatusRequest struct{}

// StatusReply summarizes the live session.
type StatusReply struct {
	Processes       []ProcessRecord `cbor:"1,keyasint,omitempty"`
	BreakpointCount uint32          `cbor:"2,keyasint"`
	FilterCount     uint32          `cbor:"3,keyasint"`
}

// LaunchRequest starts a raw executable or a component. Argv must be
// non-empty; a component URL in Argv[0] selects the component path.
type LaunchRequest struct {
	Argv []string `cbor:"1,keyasint"`
}

// LaunchReply reports the launch outcome. For raw launches ProcessKoid
// identifies the tracked process; for component launches ComponentID
// correlates the eventual process-starting notification.
type LaunchReply struct {
	Status      Status `cbor:"1,keyasint"`
	ProcessKoid uint64 `cbor:"2,keyasint,omitempty"`
	ProcessName string `cbor:"3,keyasint,omitempty"`
	ComponentID uint64 `cbor:"4,keyasint,omitempty"`
}

// KillRequest kills a tracked process.
type KillRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
}

// KillReply reports the kill outcome.
type KillReply struct {
	Status Status `cbor:"1,keyasint"`
}

// AttachRequest attaches to a live process by koid.
type AttachRequest struct {
	Koid uint64 `cbor:"1,keyasint"`
}

// AttachReply is sent asynchronously with the request's transaction id.
type AttachReply struct {
	Status Status `cbor:"1,keyasint"`
	Koid   uint64 `cbor:"2,keyasint,omitempty"`
	Name   string `cbor:"3,keyasint,omitempty"`
}

// DetachRequest stops tracking a process without killing it.
type DetachRequest struct {
	Koid uint64 `cbor:"1,keyasint"`
}

// DetachReply reports the detach outcome.
type DetachReply struct {
	Status Status `cbor:"1,keyasint"`
}

// PauseRequest suspends a thread, a whole process, or everything.
// ProcessKoid zero means all processes; ThreadKoid zero means all threads
// of the selected process.
type PauseRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint,omitempty"`
	ThreadKoid  uint64 `cbor:"2,keyasint,omitempty"`
}

// PauseReply reports the pause outcome.
type PauseReply struct {
	Status Status `cbor:"1,keyasint"`
}

// ResumeRequest resumes a thread, a whole process, or everything, with
// the same koid scoping as PauseRequest. Resuming running threads is a
// no-op.
type ResumeRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint,omitempty"`
	ThreadKoid  uint64 `cbor:"2,keyasint,omitempty"`
}

// ResumeReply reports the resume outcome.
type ResumeReply struct {
	Status Status `cbor:"1,keyasint"`
}

// ModulesRequest lists the modules loaded in a process.
type ModulesRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
}

// ModulesReply carries the module list.
type ModulesReply struct {
	Status  Status   `cbor:"1,keyasint"`
	Modules []Module `cbor:"2,keyasint,omitempty"`
}

// ProcessTreeRequest asks for the job/process tree under the agent's
// root job.
type ProcessTreeRequest struct{}

// ProcessTreeReply carries the tree snapshot.
type ProcessTreeReply struct {
	Root ProcessTreeRecord `cbor:"1,keyasint"`
}

// ThreadsRequest lists the threads of a tracked process.
type ThreadsRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
}

// ThreadsReply carries the thread list.
type ThreadsReply struct {
	Status  Status         `cbor:"1,keyasint"`
	Threads []ThreadRecord `cbor:"2,keyasint,omitempty"`
}

// ReadMemoryRequest reads target memory.
type ReadMemoryRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
	Address     uint64 `cbor:"2,keyasint"`
	Size        uint32 `cbor:"3,keyasint"`
}

// ReadMemoryReply carries the bytes actually read.
type ReadMemoryReply struct {
	Status Status `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint,omitempty"`
}

// WriteMemoryRequest writes target memory.
type WriteMemoryRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
	Address     uint64 `cbor:"2,keyasint"`
	Data        []byte `cbor:"3,keyasint"`
}

// WriteMemoryReply reports the write outcome.
type WriteMemoryReply struct {
	Status Status `cbor:"1,keyasint"`
}

// ReadRegistersRequest reads a stopped thread's registers.
type ReadRegistersRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
	ThreadKoid  uint64 `cbor:"2,keyasint"`
}

// ReadRegistersReply carries the register values.
type ReadRegistersReply struct {
	Status    Status     `cbor:"1,keyasint"`
	Registers []Register `cbor:"2,keyasint,omitempty"`
}

// WriteRegistersRequest writes a stopped thread's registers.
type WriteRegistersRequest struct {
	ProcessKoid uint64     `cbor:"1,keyasint"`
	ThreadKoid  uint64     `cbor:"2,keyasint"`
	Registers   []Register `cbor:"3,keyasint"`
}

// WriteRegistersReply reports the write outcome.
type WriteRegistersReply struct {
	Status Status `cbor:"1,keyasint"`
}

// AddOrChangeBreakpointRequest upserts a breakpoint by id. Registration
// is atomic across locations: on any failure nothing is installed.
type AddOrChangeBreakpointRequest struct {
	Breakpoint BreakpointSettings `cbor:"1,keyasint"`
}

// AddOrChangeBreakpointReply reports the first failure, if any.
type AddOrChangeBreakpointReply struct {
	Status Status `cbor:"1,keyasint"`
}

// RemoveBreakpointRequest removes a breakpoint by id. Removing an
// unknown id is not an error.
type RemoveBreakpointRequest struct {
	BreakpointID uint32 `cbor:"1,keyasint"`
}

// RemoveBreakpointReply acknowledges the removal.
type RemoveBreakpointReply struct{}

// SysInfoRequest asks for host capabilities.
type SysInfoRequest struct{}

// SysInfoReply describes the host.
type SysInfoReply struct {
	Version                 string `cbor:"1,keyasint"`
	NumCPUs                 uint32 `cbor:"2,keyasint"`
	MemoryMB                uint64 `cbor:"3,keyasint"`
	HWBreakpointCount       uint32 `cbor:"4,keyasint"`
	HWWatchpointCount       uint32 `cbor:"5,keyasint"`
	SoftwareBreakpointBytes uint32 `cbor:"6,keyasint"`
}

// ProcessStatusRequest asks for one process's status. Recently exited
// processes still answer with their last known record.
type ProcessStatusRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
}

// ProcessStatusReply carries the record.
type ProcessStatusReply struct {
	Status  Status        `cbor:"1,keyasint"`
	Record  ProcessRecord `cbor:"2,keyasint,omitempty"`
	Running bool          `cbor:"3,keyasint,omitempty"`
}

// ThreadStatusRequest asks for one thread's status.
type ThreadStatusRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
	ThreadKoid  uint64 `cbor:"2,keyasint"`
}

// ThreadStatusReply carries the record.
type ThreadStatusReply struct {
	Status Status       `cbor:"1,keyasint"`
	Record ThreadRecord `cbor:"2,keyasint,omitempty"`
}

// AddressSpaceRequest lists the mapped regions of a process. A non-zero
// Address restricts the reply to regions containing it.
type AddressSpaceRequest struct {
	ProcessKoid uint64 `cbor:"1,keyasint"`
	Address     uint64 `cbor:"2,keyasint,omitempty"`
}

// AddressSpaceReply carries the region list.
type AddressSpaceReply struct {
	Status  Status          `cbor:"1,keyasint"`
	Regions []AddressRegion `cbor:"2,keyasint,omitempty"`
}

// JobFilterRequest replaces the filter set of a job. JobKoid zero means
// the agent's root job. The reply lists processes that already match so
// the client can attach to programs that predate the filter; the agent
// does not attach implicitly.
type JobFilterRequest struct {
	JobKoid uint64   `cbor:"1,keyasint,omitempty"`
	Filters []string `cbor:"2,keyasint"`
}

// JobFilterReply carries the currently matching process koids.
type JobFilterReply struct {
	Status       Status   `cbor:"1,keyasint"`
	MatchedKoids []uint64 `cbor:"2,keyasint,omitempty"`
}

// ConfigAction is one AgentConfiguration mutation.
type ConfigAction struct {
	Type  ConfigActionType `cbor:"1,keyasint"`
	Value string           `cbor:"2,keyasint"`
}

// ConfigActionType selects which toggle a ConfigAction mutates.
type ConfigActionType uint32

const (
	// ConfigActionQuitOnExit controls whether the agent exits when the
	// client disconnects. Value is "true" or "false".
	ConfigActionQuitOnExit ConfigActionType = iota
)

// ConfigAgentRequest applies configuration actions in order.
type ConfigAgentRequest struct {
	Actions []ConfigAction `cbor:"1,keyasint"`
}

// ConfigAgentReply carries one status per action, in request order.
type ConfigAgentReply struct {
	Results []Status `cbor:"1,keyasint,omitempty"`
}

// QuitAgentRequest asks the agent to shut down gracefully.
type QuitAgentRequest struct{}

// QuitAgentReply acknowledges shutdown; it is sent before the agent
// exits.
type QuitAgentReply struct{}
