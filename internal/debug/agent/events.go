package agent

import (
	"github.com/remora-mesh/remora/internal/debug/process"
	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// OnProcessStart handles a process caught by a job filter. If the filter
// belongs to a pending component launch, the oldest expectation with
// that filter is consumed and its component id travels with the
// notification so the client can correlate.
func (a *Agent) OnProcessStart(filter string, proc sysapi.Process) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.procs[proc.Koid()]; ok {
		return
	}

	var componentID uint64
	if queue := a.expected[filter]; len(queue) > 0 {
		componentID = queue[0].id
		if len(queue) == 1 {
			delete(a.expected, filter)
		} else {
			a.expected[filter] = queue[1:]
		}
	}

	a.trackProcessLocked(proc, componentID, true)
}

// trackProcessLocked begins tracking a process: wraps it, announces it,
// and only then subscribes to its events so no exception can overtake
// the process-starting notification.
func (a *Agent) trackProcessLocked(proc sysapi.Process, componentID uint64, announce bool) *process.DebuggedProcess {
	dp := process.New(proc, a.breakInstr, a.logger)
	a.procs[dp.Koid()] = dp

	a.logger.Info().
		Uint64("process_koid", uint64(dp.Koid())).
		Str("process", dp.Name()).
		Uint64("component_id", componentID).
		Msg("Tracking process")

	if announce {
		a.notifyLocked(wire.MsgNotifyProcessStarting, wire.NotifyProcessStarting{
			Koid:        uint64(dp.Koid()),
			Name:        dp.Name(),
			ComponentID: componentID,
		})
	}
	a.notifyModulesLocked(dp)

	koid := dp.Koid()
	proc.WatchEvents(func(ev sysapi.ProcessEvent) {
		a.onProcessEvent(koid, ev)
	})
	return dp
}

// notifyModulesLocked sends the current module list if the process has
// any mapped.
func (a *Agent) notifyModulesLocked(dp *process.DebuggedProcess) {
	modules, err := dp.Handle().Modules()
	if err != nil || len(modules) == 0 {
		return
	}
	records := make([]wire.Module, len(modules))
	for i, m := range modules {
		records[i] = wire.Module{Name: m.Name, Base: m.Base, BuildID: m.BuildID}
	}
	a.notifyLocked(wire.MsgNotifyModules, wire.NotifyModules{
		ProcessKoid: uint64(dp.Koid()),
		Modules:     records,
	})
}

// onProcessEvent is the single entry point for asynchronous target
// events. Events for processes the agent no longer tracks are stale and
// dropped.
func (a *Agent) onProcessEvent(koid sysapi.Koid, ev sysapi.ProcessEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp, ok := a.procs[koid]
	if !ok {
		return
	}

	switch ev.Kind {
	case sysapi.EventThreadStarting:
		dt := dp.OnThreadStarting(ev.Thread)
		a.notifyLocked(wire.MsgNotifyThreadStarting, wire.NotifyThreadStarting{
			Record: threadRecord(koid, dt),
		})

	case sysapi.EventThreadExiting:
		dt, known := dp.Thread(ev.ThreadKoid)
		if !dp.OnThreadExiting(ev.ThreadKoid) {
			return
		}
		record := wire.ThreadRecord{ProcessKoid: uint64(koid), ThreadKoid: uint64(ev.ThreadKoid)}
		if known {
			record = threadRecord(koid, dt)
		}
		a.notifyLocked(wire.MsgNotifyThreadExiting, wire.NotifyThreadExiting{Record: record})

	case sysapi.EventException:
		a.onExceptionLocked(dp, ev.Exception)

	case sysapi.EventProcessExiting:
		a.untrackProcessLocked(dp, ev.ReturnCode, true)
	}
}

// onExceptionLocked marks the faulting thread stopped, collects hit
// accounting for every breakpoint covering the address, notifies, and
// then removes breakpoints a one-shot hit condemned.
func (a *Agent) onExceptionLocked(dp *process.DebuggedProcess, exc sysapi.Exception) {
	record := wire.ThreadRecord{
		ProcessKoid: uint64(dp.Koid()),
		ThreadKoid:  uint64(exc.ThreadKoid),
		State:       wire.ThreadStopped,
	}
	if dt, ok := dp.Thread(exc.ThreadKoid); ok {
		dt.OnException()
		record = threadRecord(dp.Koid(), dt)
	}

	var (
		stats     []wire.BreakpointStats
		condemned []uint32
	)
	for _, bp := range dp.BreakpointsAt(exc.Address) {
		st := bp.OnHit()
		stats = append(stats, wire.BreakpointStats{
			ID:           st.ID,
			HitCount:     st.HitCount,
			ShouldDelete: st.ShouldDelete,
		})
		if st.ShouldDelete {
			condemned = append(condemned, st.ID)
		}
	}

	a.notifyLocked(wire.MsgNotifyException, wire.NotifyException{
		ProcessKoid:    uint64(dp.Koid()),
		Thread:         record,
		Kind:           exceptionKind(exc.Kind),
		Address:        exc.Address,
		HitBreakpoints: stats,
	})

	// One-shot breakpoints are removed only after the client has been
	// told they fired.
	for _, id := range condemned {
		a.removeBreakpointLocked(id)
	}
}

// untrackProcessLocked drops a process from the session. Breakpoint
// locations owned by the process are pruned. Only processes that
// actually exited go into the exited cache; a detached process is still
// running and a later status query must not report it dead.
func (a *Agent) untrackProcessLocked(dp *process.DebuggedProcess, returnCode int64, exited bool) {
	koid := dp.Koid()
	if exited {
		a.exited.Add(koid, wire.ProcessRecord{
			ProcessKoid: uint64(koid),
			Name:        dp.Name(),
			ThreadCount: uint32(len(dp.Threads())),
		})
	}
	delete(a.procs, koid)

	for id, bp := range a.breakpoints {
		if bp.PruneProcess(koid) == 0 {
			delete(a.breakpoints, id)
		}
	}

	if exited {
		a.logger.Info().
			Uint64("process_koid", uint64(koid)).
			Int64("return_code", returnCode).
			Msg("Process exited")
		a.notifyLocked(wire.MsgNotifyProcessExiting, wire.NotifyProcessExiting{
			Koid:       uint64(koid),
			ReturnCode: returnCode,
		})
	}

	if exited && a.config.QuitOnExit && len(a.procs) == 0 {
		a.scheduleQuit()
	}
}

func threadRecord(processKoid sysapi.Koid, dt *process.DebuggedThread) wire.ThreadRecord {
	return wire.ThreadRecord{
		ProcessKoid: uint64(processKoid),
		ThreadKoid:  uint64(dt.Koid()),
		Name:        dt.Name(),
		State:       threadState(dt.State()),
	}
}

func threadState(s process.ThreadState) wire.ThreadState {
	switch s {
	case process.ThreadStopped:
		return wire.ThreadStopped
	case process.ThreadStepping:
		return wire.ThreadStepping
	}
	return wire.ThreadRunning
}

func exceptionKind(k sysapi.ExceptionKind) wire.ExceptionKind {
	switch k {
	case sysapi.ExceptionSoftwareBreakpoint:
		return wire.ExceptionKindSoftwareBreakpoint
	case sysapi.ExceptionHardwareBreakpoint:
		return wire.ExceptionKindHardwareBreakpoint
	case sysapi.ExceptionWatchpoint:
		return wire.ExceptionKindWatchpoint
	case sysapi.ExceptionPageFault:
		return wire.ExceptionKindPageFault
	case sysapi.ExceptionGeneral:
		return wire.ExceptionKindGeneral
	}
	return wire.ExceptionKindNone
}
