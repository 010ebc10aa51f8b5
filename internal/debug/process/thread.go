package process

import "github.com/remora-mesh/remora/internal/sysapi"

// ThreadState is a thread's run state as tracked by the agent.
type ThreadState int

const (
	ThreadRunning ThreadState = iota
	// ThreadStopped covers both client-requested pauses and
	// stopped-in-exception.
	ThreadStopped
	ThreadStepping
)

// String implements fmt.Stringer.
func (s ThreadState) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadStopped:
		return "stopped"
	case ThreadStepping:
		return "stepping"
	}
	return "unknown"
}

// DebuggedThread tracks one thread of a debugged process.
type DebuggedThread struct {
	thread sysapi.Thread
	state  ThreadState
}

func newDebuggedThread(t sysapi.Thread) *DebuggedThread {
	return &DebuggedThread{thread: t, state: ThreadRunning}
}

// Koid returns the thread's koid.
func (t *DebuggedThread) Koid() sysapi.Koid { return t.thread.Koid() }

// Name returns the thread's name.
func (t *DebuggedThread) Name() string { return t.thread.Name() }

// State returns the tracked run state.
func (t *DebuggedThread) State() ThreadState { return t.state }

// Handle returns the underlying sysapi thread.
func (t *DebuggedThread) Handle() sysapi.Thread { return t.thread }

// Pause suspends the thread. Pausing a stopped thread is a no-op.
func (t *DebuggedThread) Pause() error {
	if t.state == ThreadStopped {
		return nil
	}
	if err := t.thread.Suspend(); err != nil {
		return err
	}
	t.state = ThreadStopped
	return nil
}

// Resume resumes the thread. Resuming a running thread is a no-op.
func (t *DebuggedThread) Resume() error {
	if t.state == ThreadRunning {
		return nil
	}
	if err := t.thread.Resume(); err != nil {
		return err
	}
	t.state = ThreadRunning
	return nil
}

// OnException marks the thread stopped-in-exception. The OS already
// suspended it; no Suspend call is issued.
func (t *DebuggedThread) OnException() {
	t.state = ThreadStopped
}
