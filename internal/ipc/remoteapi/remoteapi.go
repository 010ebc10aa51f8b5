// Package remoteapi dispatches decoded wire messages to a Handler and
// sends replies and notifications back through a stream buffer. It owns
// no session state; the agent does.
package remoteapi

import (
	"github.com/remora-mesh/remora/internal/ipc/wire"
)

// Handler is the set of request handlers backing one debug session.
// Every handler except OnAttach returns its reply synchronously; the
// adapter encodes it with the request's transaction id. OnAttach is
// handed the transaction id and replies on its own schedule through the
// Sender.
type Handler interface {
	OnHello(req wire.HelloRequest) wire.HelloReply
	OnStatus(req wire.StatusRequest) wire.StatusReply
	OnLaunch(req wire.LaunchRequest) wire.LaunchReply
	OnKill(req wire.KillRequest) wire.KillReply
	OnAttach(transactionID uint32, req wire.AttachRequest)
	OnDetach(req wire.DetachRequest) wire.DetachReply
	OnPause(req wire.PauseRequest) wire.PauseReply
	OnResume(req wire.ResumeRequest) wire.ResumeReply
	OnModules(req wire.ModulesRequest) wire.ModulesReply
	OnProcessTree(req wire.ProcessTreeRequest) wire.ProcessTreeReply
	OnThreads(req wire.ThreadsRequest) wire.ThreadsReply
	OnReadMemory(req wire.ReadMemoryRequest) wire.ReadMemoryReply
	OnWriteMemory(req wire.WriteMemoryRequest) wire.WriteMemoryReply
	OnReadRegisters(req wire.ReadRegistersRequest) wire.ReadRegistersReply
	OnWriteRegisters(req wire.WriteRegistersRequest) wire.WriteRegistersReply
	OnAddOrChangeBreakpoint(req wire.AddOrChangeBreakpointRequest) wire.AddOrChangeBreakpointReply
	OnRemoveBreakpoint(req wire.RemoveBreakpointRequest) wire.RemoveBreakpointReply
	OnSysInfo(req wire.SysInfoRequest) wire.SysInfoReply
	OnProcessStatus(req wire.ProcessStatusRequest) wire.ProcessStatusReply
	OnThreadStatus(req wire.ThreadStatusRequest) wire.ThreadStatusReply
	OnAddressSpace(req wire.AddressSpaceRequest) wire.AddressSpaceReply
	OnJobFilter(req wire.JobFilterRequest) wire.JobFilterReply
	OnConfigAgent(req wire.ConfigAgentRequest) wire.ConfigAgentReply
	OnQuitAgent(req wire.QuitAgentRequest) wire.QuitAgentReply
}

// Sender pushes agent-initiated messages to the client: notifications
// and the asynchronous attach reply.
type Sender interface {
	// SendNotify encodes and sends a notification with transaction id
	// zero.
	SendNotify(msgType wire.MsgType, payload any) error

	// SendReply encodes and sends a reply for an earlier request.
	SendReply(msgType wire.MsgType, transactionID uint32, payload any) error
}
