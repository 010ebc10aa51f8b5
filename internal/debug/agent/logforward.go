package agent

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/ipc/remoteapi"
	"github.com/remora-mesh/remora/internal/ipc/wire"
)

// logForwarder is a zerolog hook mirroring warn and error lines to the
// connected client as NotifyLog messages, so a remote debugger surfaces
// agent-side trouble without shell access to the host. It carries its
// own lock because hooks fire from paths that already hold the agent
// mutex.
type logForwarder struct {
	mu     sync.Mutex
	sender remoteapi.Sender
}

func (f *logForwarder) bind(sender remoteapi.Sender) {
	f.mu.Lock()
	f.sender = sender
	f.mu.Unlock()
}

// Run implements zerolog.Hook. Send failures are dropped: logging about
// them would re-enter the hook.
func (f *logForwarder) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if level < zerolog.WarnLevel || message == "" {
		return
	}
	f.mu.Lock()
	sender := f.sender
	f.mu.Unlock()
	if sender == nil {
		return
	}

	severity := wire.NotifyLogWarn
	if level >= zerolog.ErrorLevel {
		severity = wire.NotifyLogError
	}
	_ = sender.SendNotify(wire.MsgNotifyLog, wire.NotifyLog{
		Severity: severity,
		Message:  message,
	})
}
