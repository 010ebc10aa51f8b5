package remoteapi

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/streambuf"
)

// Adapter reads framed messages from a stream buffer, decodes them and
// dispatches to a Handler. Partial messages are left buffered until more
// data arrives; messages with an unknown type are logged and skipped
// without closing the stream.
type Adapter struct {
	stream  *streambuf.StreamBuffer
	handler Handler
	logger  zerolog.Logger
}

// NewAdapter wires a handler to a stream buffer. The returned adapter is
// also the Sender the handler uses for notifications.
func NewAdapter(stream *streambuf.StreamBuffer, handler Handler, logger zerolog.Logger) *Adapter {
	return &Adapter{
		stream:  stream,
		handler: handler,
		logger:  logger.With().Str("component", "remote_api").Logger(),
	}
}

// OnStreamReadable consumes every complete message currently buffered.
// It returns an error only for unrecoverable framing corruption; the
// transport should close the connection in that case.
func (a *Adapter) OnStreamReadable() error {
	for {
		var headerBuf [wire.HeaderSize]byte
		if a.stream.Peek(headerBuf[:]) < wire.HeaderSize {
			return nil
		}
		header, err := wire.DecodeHeader(headerBuf[:])
		if err != nil {
			return fmt.Errorf("corrupt message header: %w", err)
		}
		if a.stream.ReadableBytes() < int(header.Size) {
			// Wait for the rest of the message.
			return nil
		}

		msg := make([]byte, header.Size)
		a.stream.Read(msg)
		a.dispatch(header, msg[wire.HeaderSize:])
	}
}

// SendNotify implements Sender.
func (a *Adapter) SendNotify(msgType wire.MsgType, payload any) error {
	return a.SendReply(msgType, 0, payload)
}

// SendReply implements Sender.
func (a *Adapter) SendReply(msgType wire.MsgType, transactionID uint32, payload any) error {
	buf, err := wire.EncodeMessage(msgType, transactionID, payload)
	if err != nil {
		return err
	}
	return a.stream.Write(buf)
}

// dispatch decodes one message body and calls the matching handler. A
// payload that fails to decode is dropped with a log line; the stream
// framing is intact so later messages are unaffected.
func (a *Adapter) dispatch(header wire.Header, body []byte) {
	var (
		reply any
		err   error
	)

	switch header.Type {
	case wire.MsgHello:
		var req wire.HelloRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnHello(req)
		}
	case wire.MsgStatus:
		var req wire.StatusRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnStatus(req)
		}
	case wire.MsgLaunch:
		var req wire.LaunchRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnLaunch(req)
		}
	case wire.MsgKill:
		var req wire.KillRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnKill(req)
		}
	case wire.MsgAttach:
		var req wire.AttachRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			// The attach reply is sent asynchronously with this
			// transaction id.
			a.handler.OnAttach(header.TransactionID, req)
			return
		}
	case wire.MsgDetach:
		var req wire.DetachRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnDetach(req)
		}
	case wire.MsgPause:
		var req wire.PauseRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnPause(req)
		}
	case wire.MsgResume:
		var req wire.ResumeRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnResume(req)
		}
	case wire.MsgModules:
		var req wire.ModulesRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnModules(req)
		}
	case wire.MsgProcessTree:
		var req wire.ProcessTreeRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnProcessTree(req)
		}
	case wire.MsgThreads:
		var req wire.ThreadsRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnThreads(req)
		}
	case wire.MsgReadMemory:
		var req wire.ReadMemoryRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnReadMemory(req)
		}
	case wire.MsgWriteMemory:
		var req wire.WriteMemoryRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnWriteMemory(req)
		}
	case wire.MsgReadRegisters:
		var req wire.ReadRegistersRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnReadRegisters(req)
		}
	case wire.MsgWriteRegisters:
		var req wire.WriteRegistersRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnWriteRegisters(req)
		}
	case wire.MsgAddOrChangeBreakpoint:
		var req wire.AddOrChangeBreakpointRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnAddOrChangeBreakpoint(req)
		}
	case wire.MsgRemoveBreakpoint:
		var req wire.RemoveBreakpointRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnRemoveBreakpoint(req)
		}
	case wire.MsgSysInfo:
		var req wire.SysInfoRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnSysInfo(req)
		}
	case wire.MsgProcessStatus:
		var req wire.ProcessStatusRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnProcessStatus(req)
		}
	case wire.MsgThreadStatus:
		var req wire.ThreadStatusRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnThreadStatus(req)
		}
	case wire.MsgAddressSpace:
		var req wire.AddressSpaceRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnAddressSpace(req)
		}
	case wire.MsgJobFilter:
		var req wire.JobFilterRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnJobFilter(req)
		}
	case wire.MsgConfigAgent:
		var req wire.ConfigAgentRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnConfigAgent(req)
		}
	case wire.MsgQuitAgent:
		var req wire.QuitAgentRequest
		if err = wire.DecodePayload(body, &req); err == nil {
			reply = a.handler.OnQuitAgent(req)
		}
	default:
		a.logger.Warn().
			Uint32("type", uint32(header.Type)).
			Uint32("transaction_id", header.TransactionID).
			Msg("Dropping message with unknown type")
		return
	}

	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("type", header.Type.String()).
			Uint32("transaction_id", header.TransactionID).
			Msg("Dropping message with malformed payload")
		return
	}

	if sendErr := a.SendReply(header.Type, header.TransactionID, reply); sendErr != nil {
		a.logger.Error().
			Err(sendErr).
			Str("type", header.Type.String()).
			Msg("Failed to send reply")
	}
}
