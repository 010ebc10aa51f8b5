// Package breakpoint implements the cross-process logical breakpoint: one
// client-visible id backed by per-process installed locations. The actual
// installation mechanism lives behind ProcessDelegate; this package owns
// settings, transactional registration and hit accounting.
package breakpoint

import (
	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/sysapi"
)

// Kind distinguishes how a breakpoint traps.
type Kind int

const (
	// Software patches a break instruction into the target code.
	Software Kind = iota
	// Hardware claims a debug-register slot triggered on execution.
	Hardware
	// Watchpoint claims a debug-register slot triggered on writes to an
	// address range.
	Watchpoint
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Software:
		return "software"
	case Hardware:
		return "hardware"
	case Watchpoint:
		return "watchpoint"
	}
	return "unknown"
}

// Location binds a breakpoint to one process. Code breakpoints set
// Address; watchpoints set Range.
type Location struct {
	ProcessKoid sysapi.Koid
	Address     uint64
	Range       sysapi.AddressRange
}

// Settings is the client-controlled definition of a breakpoint.
type Settings struct {
	ID        uint32
	Kind      Kind
	OneShot   bool
	Locations []Location
}

// Stats is the hit accounting reported with exception notifications.
type Stats struct {
	ID           uint32
	HitCount     uint32
	ShouldDelete bool
}

// ProcessDelegate installs and removes per-process breakpoint locations.
// Implementations must be idempotent: registering the same (breakpoint,
// process, address) twice must not double-install.
type ProcessDelegate interface {
	RegisterBreakpoint(bp *Breakpoint, process sysapi.Koid, address uint64) error
	UnregisterBreakpoint(bp *Breakpoint, process sysapi.Koid, address uint64)
	RegisterWatchpoint(bp *Breakpoint, process sysapi.Koid, rng sysapi.AddressRange) error
	UnregisterWatchpoint(bp *Breakpoint, process sysapi.Koid, rng sysapi.AddressRange)
}

type locKey struct {
	process sysapi.Koid
	address uint64
	rng     sysapi.AddressRange
}

func keyFor(loc Location) locKey {
	return locKey{process: loc.ProcessKoid, address: loc.Address, rng: loc.Range}
}

// Breakpoint is one logical breakpoint. It is owned and mutated only by
// the agent; no internal locking.
type Breakpoint struct {
	delegate ProcessDelegate
	settings Settings

	hitCount     uint32
	shouldDelete bool

	// installed tracks which locations are currently registered with
	// the delegate.
	installed map[locKey]Location

	logger zerolog.Logger
}

// New creates an empty breakpoint. Call SetSettings to install locations.
func New(delegate ProcessDelegate, logger zerolog.Logger) *Breakpoint {
	return &Breakpoint{
		delegate:  delegate,
		installed: make(map[locKey]Location),
		logger:    logger,
	}
}

// Settings returns the current definition.
func (b *Breakpoint) Settings() Settings { return b.settings }

// HitCount returns how many times any location has trapped.
func (b *Breakpoint) HitCount() uint32 { return b.hitCount }

// ShouldDelete reports whether a one-shot hit marked this breakpoint for
// removal.
func (b *Breakpoint) ShouldDelete() bool { return b.shouldDelete }

// Stats returns the current hit accounting.
func (b *Breakpoint) Stats() Stats {
	return Stats{ID: b.settings.ID, HitCount: b.hitCount, ShouldDelete: b.shouldDelete}
}

// SetSettings applies a new definition transactionally. Every location
// added by the new settings is registered with the delegate; on the first
// failure all registrations made by this call are unwound, the previous
// settings are restored, and the failure is returned. On success,
// locations absent from the new settings are unregistered.
func (b *Breakpoint) SetSettings(settings Settings) error {
	previous := b.settings

	// A kind change invalidates every existing installation; unregister
	// under the old kind before registering under the new one.
	if previous.Kind != settings.Kind && len(b.installed) > 0 {
		b.Teardown()
	}
	b.settings = settings

	wanted := make(map[locKey]bool, len(settings.Locations))
	var added []Location
	for _, loc := range settings.Locations {
		key := keyFor(loc)
		wanted[key] = true
		if _, ok := b.installed[key]; ok {
			continue
		}
		if err := b.register(loc); err != nil {
			for _, a := range added {
				b.unregister(a)
				delete(b.installed, keyFor(a))
			}
			b.settings = previous
			return err
		}
		b.installed[key] = loc
		added = append(added, loc)
	}

	for key, loc := range b.installed {
		if !wanted[key] {
			b.unregister(loc)
			delete(b.installed, key)
		}
	}
	return nil
}

// OnHit records one trap and returns the stats to report. The first hit
// of a one-shot breakpoint marks it for deletion.
func (b *Breakpoint) OnHit() Stats {
	b.hitCount++
	if b.settings.OneShot {
		b.shouldDelete = true
	}
	return b.Stats()
}

// MatchesAddress reports whether any location of this breakpoint in the
// given process covers the address.
func (b *Breakpoint) MatchesAddress(process sysapi.Koid, address uint64) bool {
	for _, loc := range b.settings.Locations {
		if loc.ProcessKoid != process {
			continue
		}
		if loc.Range.Size() > 0 {
			if loc.Range.Contains(address) {
				return true
			}
		} else if loc.Address == address {
			return true
		}
	}
	return false
}

// PruneProcess drops and unregisters every location owned by the given
// process, e.g. on detach or process exit. Returns the number of
// locations remaining; a breakpoint left with zero locations is removed
// by the agent.
func (b *Breakpoint) PruneProcess(process sysapi.Koid) int {
	var kept []Location
	for _, loc := range b.settings.Locations {
		if loc.ProcessKoid != process {
			kept = append(kept, loc)
			continue
		}
		key := keyFor(loc)
		if _, ok := b.installed[key]; ok {
			b.unregister(loc)
			delete(b.installed, key)
		}
	}
	b.settings.Locations = kept
	return len(kept)
}

// Teardown unregisters every installed location.
func (b *Breakpoint) Teardown() {
	for key, loc := range b.installed {
		b.unregister(loc)
		delete(b.installed, key)
	}
}

func (b *Breakpoint) register(loc Location) error {
	if b.settings.Kind == Watchpoint {
		return b.delegate.RegisterWatchpoint(b, loc.ProcessKoid, loc.Range)
	}
	return b.delegate.RegisterBreakpoint(b, loc.ProcessKoid, loc.Address)
}

func (b *Breakpoint) unregister(loc Location) {
	if b.settings.Kind == Watchpoint {
		b.delegate.UnregisterWatchpoint(b, loc.ProcessKoid, loc.Range)
		return
	}
	b.delegate.UnregisterBreakpoint(b, loc.ProcessKoid, loc.Address)
}
