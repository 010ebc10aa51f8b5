package mocksys

import "github.com/remora-mesh/remora/internal/sysapi"

// Job implements sysapi.Job over the scripted tree.
type Job struct {
	sys    *System
	koid   sysapi.Koid
	name   string
	parent *Job

	childJobs []*Job
	processes []*Process
	watchers  []func(sysapi.Process)
}

// Koid implements sysapi.Job.
func (j *Job) Koid() sysapi.Koid { return j.koid }

// Name implements sysapi.Job.
func (j *Job) Name() string { return j.name }

// ChildJobs implements sysapi.Job.
func (j *Job) ChildJobs() []sysapi.Job {
	j.sys.mu.Lock()
	defer j.sys.mu.Unlock()
	out := make([]sysapi.Job, len(j.childJobs))
	for i, c := range j.childJobs {
		out[i] = c
	}
	return out
}

// Processes implements sysapi.Job.
func (j *Job) Processes() []sysapi.Process {
	j.sys.mu.Lock()
	defer j.sys.mu.Unlock()
	out := make([]sysapi.Process, len(j.processes))
	for i, p := range j.processes {
		out[i] = p
	}
	return out
}

// WatchProcessStarting implements sysapi.Job.
func (j *Job) WatchProcessStarting(fn func(sysapi.Process)) {
	j.sys.mu.Lock()
	defer j.sys.mu.Unlock()
	j.watchers = append(j.watchers, fn)
}
