// Package agent implements the debug session: it tracks jobs, processes
// and breakpoints, answers every remote request, and pushes
// notifications for asynchronous target events. All session state is
// guarded by one mutex; system callbacks and worker tasks re-enter
// through locked methods and re-validate object identity, so a stale
// completion for an object that has since gone away is dropped.
package agent

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/component"
	"github.com/remora-mesh/remora/internal/debug/breakpoint"
	"github.com/remora-mesh/remora/internal/debug/jobtree"
	"github.com/remora-mesh/remora/internal/debug/process"
	"github.com/remora-mesh/remora/internal/ipc/remoteapi"
	"github.com/remora-mesh/remora/internal/ipc/wire"
	"github.com/remora-mesh/remora/internal/sysapi"
	"github.com/remora-mesh/remora/internal/workerpool"
)

// exitedCacheSize bounds how many exited-process records are kept for
// ProcessStatus queries that race the exit notification.
const exitedCacheSize = 64

// Configuration holds the runtime toggles a client can flip with
// ConfigAgent actions.
type Configuration struct {
	// QuitOnExit makes the agent shut down once the last tracked
	// process exits.
	QuitOnExit bool
}

// expectedComponent is a launch awaiting its process-starting event.
// Launches whose synthesized filters collide queue up in FIFO order so
// each process start consumes exactly one expectation.
type expectedComponent struct {
	id   uint64
	ctrl *component.Controller
}

// Agent is one debug session over one client connection.
type Agent struct {
	sys        sysapi.SystemInterface
	components component.Manager
	pool       *workerpool.Pool
	maxWorkers int
	version    string
	agentID    string
	breakInstr []byte
	logger     zerolog.Logger
	logf       *logForwarder

	mu          sync.Mutex
	sender      remoteapi.Sender
	rootJob     *jobtree.DebuggedJob
	jobs        map[sysapi.Koid]*jobtree.DebuggedJob
	procs       map[sysapi.Koid]*process.DebuggedProcess
	breakpoints map[uint32]*breakpoint.Breakpoint
	expected    map[string][]expectedComponent
	exited      *lru.Cache[sysapi.Koid, wire.ProcessRecord]
	config      Configuration
	quit        func()
}

// Option tweaks agent construction.
type Option func(*Agent)

// WithMaxWorkers bounds the worker pool.
func WithMaxWorkers(n int) Option {
	return func(a *Agent) { a.maxWorkers = n }
}

// WithQuitOnExit sets the initial quit-on-exit toggle; a client can
// still flip it with a ConfigAgent action.
func WithQuitOnExit(v bool) Option {
	return func(a *Agent) { a.config.QuitOnExit = v }
}

// New creates an agent over the given system. The quit callback is
// invoked at most once, from a worker goroutine, when the agent decides
// to shut down (QuitAgent request or quit-on-exit).
func New(sys sysapi.SystemInterface, components component.Manager, version string, logger zerolog.Logger, quit func(), opts ...Option) *Agent {
	logf := &logForwarder{}
	a := &Agent{
		sys:         sys,
		components:  components,
		maxWorkers:  workerpool.DefaultMaxWorkers,
		version:     version,
		agentID:     uuid.NewString(),
		breakInstr:  sysapi.BreakInstruction(sys.Arch()),
		logger:      logger.Hook(logf).With().Str("component", "agent").Logger(),
		logf:        logf,
		jobs:        make(map[sysapi.Koid]*jobtree.DebuggedJob),
		procs:       make(map[sysapi.Koid]*process.DebuggedProcess),
		breakpoints: make(map[uint32]*breakpoint.Breakpoint),
		expected:    make(map[string][]expectedComponent),
		quit:        quit,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.pool = workerpool.New(a.maxWorkers, logger)
	a.exited, _ = lru.New[sysapi.Koid, wire.ProcessRecord](exitedCacheSize)

	root := jobtree.New(sys.RootJob(), a, a.logger)
	a.rootJob = root
	a.jobs[root.Koid()] = root

	a.logger.Info().Str("agent_id", a.agentID).Str("arch", sys.Arch()).Msg("Debug agent created")
	return a
}

// Connect binds the client message sink. Notifications produced while
// disconnected are dropped.
func (a *Agent) Connect(sender remoteapi.Sender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sender = sender
	a.logf.bind(sender)
	a.logger.Info().Msg("Client connected")
}

// Disconnect unbinds the client sink. Session state survives: a client
// can reconnect and find its processes and breakpoints intact. With
// quit-on-exit set the agent shuts down instead.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	a.sender = nil
	a.logf.bind(nil)
	quitting := a.config.QuitOnExit
	a.mu.Unlock()

	a.logger.Info().Bool("quitting", quitting).Msg("Client disconnected")
	if quitting {
		a.scheduleQuit()
	}
}

// Shutdown tears down every tracked process, restoring patched memory,
// and stops the worker pool. Not called from handler context.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	for id, bp := range a.breakpoints {
		bp.Teardown()
		delete(a.breakpoints, id)
	}
	for koid, dp := range a.procs {
		dp.Teardown()
		delete(a.procs, koid)
	}
	for _, queue := range a.expected {
		for _, exp := range queue {
			if exp.ctrl != nil {
				exp.ctrl.Stop()
			}
		}
	}
	a.expected = make(map[string][]expectedComponent)
	a.mu.Unlock()

	a.pool.Shutdown()
	a.logger.Info().Msg("Debug agent shut down")
}

// scheduleQuit runs the quit callback off the handler goroutine so the
// pending reply flushes first.
func (a *Agent) scheduleQuit() {
	a.pool.Post(func() {
		a.mu.Lock()
		quit := a.quit
		a.quit = nil
		a.mu.Unlock()
		if quit != nil {
			quit()
		}
	})
}

// notify sends a notification if a client is bound. Callers hold a.mu.
func (a *Agent) notifyLocked(msgType wire.MsgType, payload any) {
	if a.sender == nil {
		return
	}
	if err := a.sender.SendNotify(msgType, payload); err != nil {
		a.logger.Warn().Err(err).Str("type", msgType.String()).Msg("Failed to send notification")
	}
}

// replyLocked sends an asynchronous reply if a client is bound.
func (a *Agent) replyLocked(msgType wire.MsgType, transactionID uint32, payload any) {
	if a.sender == nil {
		return
	}
	if err := a.sender.SendReply(msgType, transactionID, payload); err != nil {
		a.logger.Warn().Err(err).Str("type", msgType.String()).Msg("Failed to send reply")
	}
}
