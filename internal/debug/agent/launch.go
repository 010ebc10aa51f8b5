package agent

import (
	"errors"

	"github.com/remora-mesh/remora/internal/component"
	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// OnLaunch implements remoteapi.Handler. A component URL in Argv[0]
// selects the component path; anything else launches as a raw
// executable directly under the root job.
func (a *Agent) OnLaunch(req wire.LaunchRequest) wire.LaunchReply {
	if len(req.Argv) == 0 {
		return wire.LaunchReply{Status: wire.NewStatus(wire.ErrInvalidArgs, "empty argv")}
	}
	if a.components != nil && a.components.IsComponentURL(req.Argv[0]) {
		return a.launchComponent(req.Argv)
	}
	return a.launchRaw(req.Argv)
}

func (a *Agent) launchRaw(argv []string) wire.LaunchReply {
	proc, err := a.sys.Launch(argv)
	if err != nil {
		return wire.LaunchReply{Status: wire.NewStatus(wire.ErrIO, "launch %q: %v", argv[0], err)}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	dp := a.trackProcessLocked(proc, 0, false)
	return wire.LaunchReply{
		Status:      wire.OkStatus(),
		ProcessKoid: uint64(dp.Koid()),
		ProcessName: dp.Name(),
	}
}

// launchComponent queues an expectation keyed by the synthesized
// filter, then installs that filter on the root job, and only then
// starts the component. The reply carries the component id; the tracked
// process arrives later in a NotifyProcessStarting.
func (a *Agent) launchComponent(argv []string) wire.LaunchReply {
	info, err := a.components.Prepare(argv)
	if err != nil {
		return wire.LaunchReply{Status: wire.NewStatus(wire.ErrInvalidArgs, "%v", err)}
	}

	// The expectation must be queued before the filter goes live: the
	// watch fires the instant the pattern is appended, and a match that
	// finds no expectation would be announced without a component id.
	a.mu.Lock()
	a.expected[info.Filter] = append(a.expected[info.Filter], expectedComponent{id: info.ComponentID})
	a.mu.Unlock()

	if err := a.rootJob.AppendFilters([]string{info.Filter}); err != nil {
		a.dropExpectation(info.Filter, info.ComponentID)
		return wire.LaunchReply{Status: wire.NewStatus(wire.ErrInvalidArgs, "component filter: %v", err)}
	}

	ioFn := func(stream component.Stream, data []byte) {
		kind := wire.NotifyIOStdout
		if stream == component.Stderr {
			kind = wire.NotifyIOStderr
		}
		a.mu.Lock()
		a.notifyLocked(wire.MsgNotifyIO, wire.NotifyIO{
			ComponentID: info.ComponentID,
			Kind:        kind,
			Data:        data,
		})
		a.mu.Unlock()
	}
	onExit := func(error) {
		a.dropExpectation(info.Filter, info.ComponentID)
	}

	ctrl, err := a.components.Launch(info, ioFn, onExit)
	if err != nil {
		a.dropExpectation(info.Filter, info.ComponentID)
		return wire.LaunchReply{Status: wire.NewStatus(wire.ErrIO, "component launch: %v", err)}
	}

	a.mu.Lock()
	queue := a.expected[info.Filter]
	for i := range queue {
		if queue[i].id == info.ComponentID {
			queue[i].ctrl = ctrl
			break
		}
	}
	a.mu.Unlock()

	return wire.LaunchReply{
		Status:      wire.OkStatus(),
		ProcessName: info.Name,
		ComponentID: info.ComponentID,
	}
}

// dropExpectation removes a pending component expectation if the launch
// was never matched to a process.
func (a *Agent) dropExpectation(filter string, componentID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	queue := a.expected[filter]
	for i := range queue {
		if queue[i].id == componentID {
			a.expected[filter] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(a.expected[filter]) == 0 {
		delete(a.expected, filter)
	}
}

// OnAttach implements remoteapi.Handler. Attach resolution runs on the
// worker pool; the reply is sent with the request's transaction id once
// the process is bound. Attaching to an already-tracked process fails
// with AlreadyBound.
func (a *Agent) OnAttach(transactionID uint32, req wire.AttachRequest) {
	a.pool.Post(func() {
		koid := sysapi.Koid(req.Koid)

		a.mu.Lock()
		if _, ok := a.procs[koid]; ok {
			a.replyLocked(wire.MsgAttach, transactionID, wire.AttachReply{
				Status: wire.NewStatus(wire.ErrAlreadyBound, "process %d already attached", req.Koid),
			})
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		proc, err := a.sys.Process(koid)
		if err != nil {
			status := wire.NewStatus(wire.ErrIO, "attach %d: %v", req.Koid, err)
			if errors.Is(err, sysapi.ErrNotFound) {
				status = wire.NewStatus(wire.ErrNotFound, "process %d not found", req.Koid)
			}
			a.mu.Lock()
			a.replyLocked(wire.MsgAttach, transactionID, wire.AttachReply{Status: status})
			a.mu.Unlock()
			return
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		// Re-check: another attach or a filter may have bound the
		// process while the lock was dropped.
		if _, ok := a.procs[koid]; ok {
			a.replyLocked(wire.MsgAttach, transactionID, wire.AttachReply{
				Status: wire.NewStatus(wire.ErrAlreadyBound, "process %d already attached", req.Koid),
			})
			return
		}

		a.replyLocked(wire.MsgAttach, transactionID, wire.AttachReply{
			Status: wire.OkStatus(),
			Koid:   uint64(proc.Koid()),
			Name:   proc.Name(),
		})
		a.trackProcessLocked(proc, 0, false)
	})
}

// OnKill implements remoteapi.Handler.
func (a *Agent) OnKill(req wire.KillRequest) wire.KillReply {
	a.mu.Lock()
	dp, tracked := a.procs[sysapi.Koid(req.ProcessKoid)]
	a.mu.Unlock()

	var target sysapi.Process
	if tracked {
		target = dp.Handle()
	} else {
		proc, err := a.sys.Process(sysapi.Koid(req.ProcessKoid))
		if err != nil {
			return wire.KillReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not found", req.ProcessKoid)}
		}
		target = proc
	}

	// The exit event, not the kill itself, untracks the process and
	// notifies the client.
	if err := target.Kill(); err != nil {
		return wire.KillReply{Status: wire.NewStatus(wire.ErrIO, "kill %d: %v", req.ProcessKoid, err)}
	}
	return wire.KillReply{Status: wire.OkStatus()}
}

// OnDetach implements remoteapi.Handler. Detach restores every patched
// byte, prunes breakpoint locations in the process, and leaves the
// target running.
func (a *Agent) OnDetach(req wire.DetachRequest) wire.DetachReply {
	a.mu.Lock()
	defer a.mu.Unlock()

	koid := sysapi.Koid(req.Koid)
	dp, ok := a.procs[koid]
	if !ok {
		return wire.DetachReply{Status: wire.NewStatus(wire.ErrNotFound, "process %d not attached", req.Koid)}
	}

	dp.Teardown()
	a.untrackProcessLocked(dp, 0, false)
	a.logger.Info().Uint64("process_koid", req.Koid).Msg("Detached from process")
	return wire.DetachReply{Status: wire.OkStatus()}
}
