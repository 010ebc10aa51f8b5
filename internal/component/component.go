// Package component prepares and launches named components. A component
// is addressed by URL; launching one does not directly yield a process
// handle. Instead the caller installs a job filter for the component's
// process name and correlates the eventual process-start event back to
// the launch via the component id.
package component

import (
	"fmt"
	"net/url"
	"path"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Stream tags forwarded stdio data.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// IOFunc receives captured stdio from a launched component.
type IOFunc func(stream Stream, data []byte)

// LaunchInfo is a prepared, validated launch. Filter is the synthesized
// process-name pattern to install on the job; ComponentID is unique per
// prepared launch and disambiguates two concurrent launches whose names
// collide.
type LaunchInfo struct {
	URL         string
	Argv        []string
	Name        string
	Filter      string
	ComponentID uint64
}

// Manager prepares and launches components. The agent depends on this
// interface so tests can script launches without spawning anything.
type Manager interface {
	// IsComponentURL reports whether the argument names a component
	// rather than a raw executable path.
	IsComponentURL(s string) bool

	// Prepare validates argv and synthesizes the launch bookkeeping.
	// It does not start anything.
	Prepare(argv []string) (*LaunchInfo, error)

	// Launch starts the prepared component. Captured stdio is delivered
	// through ioFn; onExit fires once when the component terminates.
	Launch(info *LaunchInfo, ioFn IOFunc, onExit func(err error)) (*Controller, error)
}

// ExecManager launches components as host executables resolved from the
// URL path.
type ExecManager struct {
	nextID atomic.Uint64
	logger zerolog.Logger
}

// NewExecManager creates a Manager backed by os/exec.
func NewExecManager(logger zerolog.Logger) *ExecManager {
	return &ExecManager{
		logger: logger.With().Str("component", "component_manager").Logger(),
	}
}

// IsComponentURL implements Manager. Any argument with a URL scheme is
// treated as a component.
func (m *ExecManager) IsComponentURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && (u.Path != "" || u.Host != "")
}

// Prepare implements Manager.
func (m *ExecManager) Prepare(argv []string) (*LaunchInfo, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	u, err := url.Parse(argv[0])
	if err != nil {
		return nil, fmt.Errorf("malformed component URL %q: %w", argv[0], err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("component URL %q has no scheme", argv[0])
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = u.Host
	}
	if name == "" {
		return nil, fmt.Errorf("component URL %q names no executable", argv[0])
	}

	info := &LaunchInfo{
		URL:         argv[0],
		Argv:        argv,
		Name:        name,
		Filter:      name,
		ComponentID: m.nextID.Add(1),
	}
	m.logger.Debug().
		Str("url", info.URL).
		Str("name", info.Name).
		Uint64("component_id", info.ComponentID).
		Msg("Component launch prepared")
	return info, nil
}
