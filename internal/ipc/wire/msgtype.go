// Package wire defines the binary debugger protocol: a fixed 12-byte
// little-endian header followed by a CBOR-encoded payload. Requests and
// replies share a transaction id so a client can pipeline; notifications
// are agent-initiated and carry transaction id zero.
package wire

// MsgType identifies the payload type of a message.
type MsgType uint32

// Request/reply message types. A reply carries the same type and
// transaction id as its request.
const (
	MsgNone MsgType = iota
	MsgHello
	MsgStatus
	MsgLaunch
	MsgKill
	MsgAttach
	MsgDetach
	MsgPause
	MsgResume
	MsgModules
	MsgProcessTree
	MsgThreads
	MsgReadMemory
	MsgWriteMemory
	MsgReadRegisters
	MsgWriteRegisters
	MsgAddOrChangeBreakpoint
	MsgRemoveBreakpoint
	MsgSysInfo
	MsgProcessStatus
	MsgThreadStatus
	MsgAddressSpace
	MsgJobFilter
	MsgConfigAgent
	MsgQuitAgent
)

// Notification message types. Unsolicited, agent to client only.
const (
	MsgNotifyProcessStarting MsgType = 0x1000 + iota
	MsgNotifyProcessExiting
	MsgNotifyThreadStarting
	MsgNotifyThreadExiting
	MsgNotifyModules
	MsgNotifyException
	MsgNotifyIO
	MsgNotifyLog
)

// IsNotify reports whether t is a notification type.
func (t MsgType) IsNotify() bool {
	return t >= MsgNotifyProcessStarting && t <= MsgNotifyLog
}

// String implements fmt.Stringer.
func (t MsgType) String() string {
	switch t {
	case MsgNone:
		return "None"
	case MsgHello:
		return "Hello"
	case MsgStatus:
		return "Status"
	case MsgLaunch:
		return "Launch"
	case MsgKill:
		return "Kill"
	case MsgAttach:
		return "Attach"
	case MsgDetach:
		return "Detach"
	case MsgPause:
		return "Pause"
	case MsgResume:
		return "Resume"
	case MsgModules:
		return "Modules"
	case MsgProcessTree:
		return "ProcessTree"
	case MsgThreads:
		return "Threads"
	case MsgReadMemory:
		return "ReadMemory"
	case MsgWriteMemory:
		return "WriteMemory"
	case MsgReadRegisters:
		return "ReadRegisters"
	case MsgWriteRegisters:
		return "WriteRegisters"
	case MsgAddOrChangeBreakpoint:
		return "AddOrChangeBreakpoint"
	case MsgRemoveBreakpoint:
		return "RemoveBreakpoint"
	case MsgSysInfo:
		return "SysInfo"
	case MsgProcessStatus:
		return "ProcessStatus"
	case MsgThreadStatus:
		return "ThreadStatus"
	case MsgAddressSpace:
		return "AddressSpace"
	case MsgJobFilter:
		return "JobFilter"
	case MsgConfigAgent:
		return "ConfigAgent"
	case MsgQuitAgent:
		return "QuitAgent"
	case MsgNotifyProcessStarting:
		return "NotifyProcessStarting"
	case MsgNotifyProcessExiting:
		return "NotifyProcessExiting"
	case MsgNotifyThreadStarting:
		return "NotifyThreadStarting"
	case MsgNotifyThreadExiting:
		return "NotifyThreadExiting"
	case MsgNotifyModules:
		return "NotifyModules"
	case MsgNotifyException:
		return "NotifyException"
	case MsgNotifyIO:
		return "NotifyIO"
	case MsgNotifyLog:
		return "NotifyLog"
	}
	return "Unknown"
}
