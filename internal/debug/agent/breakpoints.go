package agent

import (
	"errors"
	"fmt"

	"github.com/remora-mesh/remora/internal/debug/breakpoint"
	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/sysapi"
)

// The agent is the ProcessDelegate for every breakpoint: it routes a
// location registration to the owning DebuggedProcess. Delegate calls
// happen with a.mu held, from SetSettings or PruneProcess.

// RegisterBreakpoint implements breakpoint.ProcessDelegate.
func (a *Agent) RegisterBreakpoint(bp *breakpoint.Breakpoint, processKoid sysapi.Koid, address uint64) error {
	dp, ok := a.procs[processKoid]
	if !ok {
		return fmt.Errorf("process %d: %w", processKoid, sysapi.ErrNotFound)
	}
	if bp.Settings().Kind == breakpoint.Hardware {
		return dp.RegisterHardwareBreakpoint(bp, address)
	}
	return dp.RegisterSoftwareBreakpoint(bp, address)
}

// UnregisterBreakpoint implements breakpoint.ProcessDelegate. Unknown
// processes are tolerated: locations are pruned after a process exits.
func (a *Agent) UnregisterBreakpoint(bp *breakpoint.Breakpoint, processKoid sysapi.Koid, address uint64) {
	dp, ok := a.procs[processKoid]
	if !ok {
		return
	}
	if bp.Settings().Kind == breakpoint.Hardware {
		dp.UnregisterHardwareBreakpoint(bp, address)
		return
	}
	dp.UnregisterSoftwareBreakpoint(bp, address)
}

// RegisterWatchpoint implements breakpoint.ProcessDelegate.
func (a *Agent) RegisterWatchpoint(bp *breakpoint.Breakpoint, processKoid sysapi.Koid, rng sysapi.AddressRange) error {
	dp, ok := a.procs[processKoid]
	if !ok {
		return fmt.Errorf("process %d: %w", processKoid, sysapi.ErrNotFound)
	}
	return dp.RegisterWatchpoint(bp, rng)
}

// UnregisterWatchpoint implements breakpoint.ProcessDelegate.
func (a *Agent) UnregisterWatchpoint(bp *breakpoint.Breakpoint, processKoid sysapi.Koid, rng sysapi.AddressRange) {
	if dp, ok := a.procs[processKoid]; ok {
		dp.UnregisterWatchpoint(bp, rng)
	}
}

// OnAddOrChangeBreakpoint implements remoteapi.Handler. The upsert is
// transactional: on failure an existing breakpoint keeps its previous
// settings and a new one is discarded entirely.
func (a *Agent) OnAddOrChangeBreakpoint(req wire.AddOrChangeBreakpointRequest) wire.AddOrChangeBreakpointReply {
	settings := req.Breakpoint
	if settings.ID == 0 {
		return wire.AddOrChangeBreakpointReply{
			Status: wire.NewStatus(wire.ErrInvalidArgs, "breakpoint id must be non-zero"),
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	bp, existed := a.breakpoints[settings.ID]
	if !existed {
		bp = breakpoint.New(a, a.logger)
		a.breakpoints[settings.ID] = bp
	}

	if err := bp.SetSettings(breakpointSettings(settings)); err != nil {
		if !existed {
			delete(a.breakpoints, settings.ID)
		}
		return wire.AddOrChangeBreakpointReply{Status: registrationStatus(settings.ID, err)}
	}

	a.logger.Debug().
		Uint32("breakpoint_id", settings.ID).
		Str("kind", settings.Kind.String()).
		Int("locations", len(settings.Locations)).
		Msg("Breakpoint installed")
	return wire.AddOrChangeBreakpointReply{Status: wire.OkStatus()}
}

// OnRemoveBreakpoint implements remoteapi.Handler. Removing an unknown
// id is a no-op.
func (a *Agent) OnRemoveBreakpoint(req wire.RemoveBreakpointRequest) wire.RemoveBreakpointReply {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeBreakpointLocked(req.BreakpointID)
	return wire.RemoveBreakpointReply{}
}

func (a *Agent) removeBreakpointLocked(id uint32) {
	bp, ok := a.breakpoints[id]
	if !ok {
		return
	}
	bp.Teardown()
	delete(a.breakpoints, id)
	a.logger.Debug().Uint32("breakpoint_id", id).Msg("Breakpoint removed")
}

// registrationStatus maps a registration failure onto a wire status.
func registrationStatus(id uint32, err error) wire.Status {
	switch {
	case errors.Is(err, sysapi.ErrNotFound):
		return wire.NewStatus(wire.ErrNotFound, "breakpoint %d: %v", id, err)
	case errors.Is(err, sysapi.ErrNoHardwareSlots):
		return wire.NewStatus(wire.ErrNoResources, "breakpoint %d: %v", id, err)
	case errors.Is(err, sysapi.ErrNotMapped):
		return wire.NewStatus(wire.ErrIO, "breakpoint %d: %v", id, err)
	case errors.Is(err, sysapi.ErrNotSupported):
		return wire.NewStatus(wire.ErrNotSupported, "breakpoint %d: %v", id, err)
	}
	return wire.NewStatus(wire.ErrGeneric, "breakpoint %d: %v", id, err)
}

func breakpointSettings(s wire.BreakpointSettings) breakpoint.Settings {
	out := breakpoint.Settings{
		ID:      s.ID,
		Kind:    breakpointKind(s.Kind),
		OneShot: s.OneShot,
	}
	for _, loc := range s.Locations {
		out.Locations = append(out.Locations, breakpoint.Location{
			ProcessKoid: sysapi.Koid(loc.ProcessKoid),
			Address:     loc.Address,
			Range:       sysapi.AddressRange{Begin: loc.Range.Begin, End: loc.Range.End},
		})
	}
	return out
}

func breakpointKind(k wire.BreakpointKind) breakpoint.Kind {
	switch k {
	case wire.BreakpointHardware:
		return breakpoint.Hardware
	case wire.BreakpointWatchpoint:
		return breakpoint.Watchpoint
	}
	return breakpoint.Software
}
