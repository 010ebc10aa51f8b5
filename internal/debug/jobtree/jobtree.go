// Package jobtree wraps one job handle and decides, for every process
// that starts or already exists under it, whether a filter matches. A
// match is forwarded to a single ProcessStartHandler; an empty filter set
// deliberately matches nothing.
package jobtree

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/remora-mesh/remora/internal/sysapi"
)

// ProcessStartHandler receives processes caught by a filter. The matched
// filter's pattern is passed along so launch correlation can key on it.
type ProcessStartHandler interface {
	OnProcessStart(filter string, process sysapi.Process)
}

// DebuggedJob owns one job handle and its active filter set.
type DebuggedJob struct {
	job     sysapi.Job
	handler ProcessStartHandler
	logger  zerolog.Logger

	mu      sync.Mutex
	filters []Filter
}

// New wraps a job and begins watching for processes starting under it.
// Nothing is forwarded until SetFilters or AppendFilters installs a
// non-empty filter set.
func New(job sysapi.Job, handler ProcessStartHandler, logger zerolog.Logger) *DebuggedJob {
	d := &DebuggedJob{
		job:     job,
		handler: handler,
		logger:  logger.With().Str("component", "job").Uint64("job_koid", uint64(job.Koid())).Logger(),
	}
	job.WatchProcessStarting(d.onProcessStarting)
	return d
}

// Koid returns the wrapped job's koid.
func (d *DebuggedJob) Koid() sysapi.Koid { return d.job.Koid() }

// Job returns the wrapped job handle.
func (d *DebuggedJob) Job() sysapi.Job { return d.job }

// FilterCount returns the number of active filters.
func (d *DebuggedJob) FilterCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.filters)
}

// SetFilters replaces the active filter set and walks the current tree of
// live descendant processes, returning every match. All patterns are
// validated before any of them is stored; one invalid pattern rejects the
// whole call and leaves the previous set untouched.
func (d *DebuggedJob) SetFilters(patterns []string) ([]sysapi.Koid, error) {
	filters := make([]Filter, 0, len(patterns))
	for _, p := range patterns {
		f, err := CompileFilter(p)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	d.mu.Lock()
	d.filters = filters
	d.mu.Unlock()

	d.logger.Debug().Int("filter_count", len(filters)).Msg("Job filters replaced")

	if len(filters) == 0 {
		// Disable catching; deliberately distinct from "catch all".
		return nil, nil
	}
	return d.matchingProcesses(), nil
}

// AppendFilters adds patterns to the active set, skipping patterns that
// are already installed. Unlike SetFilters it does not walk the tree;
// callers appending a filter are waiting for a future process start.
func (d *DebuggedJob) AppendFilters(patterns []string) error {
	compiled := make([]Filter, 0, len(patterns))
	for _, p := range patterns {
		f, err := CompileFilter(p)
		if err != nil {
			return err
		}
		compiled = append(compiled, f)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
next:
	for _, f := range compiled {
		for _, existing := range d.filters {
			if existing.Pattern() == f.Pattern() {
				continue next
			}
		}
		d.filters = append(d.filters, f)
	}
	return nil
}

// matchingProcesses walks the job tree recursively and returns the koids
// of every live process whose name matches a current filter.
func (d *DebuggedJob) matchingProcesses() []sysapi.Koid {
	var matched []sysapi.Koid
	walkJob(d.job, func(p sysapi.Process) {
		if _, ok := d.matches(p.Name()); ok {
			matched = append(matched, p.Koid())
		}
	})
	return matched
}

// onProcessStarting evaluates only the new process against the current
// filters; no tree walk.
func (d *DebuggedJob) onProcessStarting(p sysapi.Process) {
	filter, ok := d.matches(p.Name())
	if !ok {
		return
	}
	d.logger.Debug().
		Str("process", p.Name()).
		Uint64("process_koid", uint64(p.Koid())).
		Str("filter", filter).
		Msg("Process caught by job filter")
	d.handler.OnProcessStart(filter, p)
}

// matches returns the pattern of the first filter matching name.
func (d *DebuggedJob) matches(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.filters {
		if f.Matches(name) {
			return f.Pattern(), true
		}
	}
	return "", false
}

// walkJob visits every process in job and in any job nested under it.
func walkJob(job sysapi.Job, visit func(sysapi.Process)) {
	for _, p := range job.Processes() {
		visit(p)
	}
	for _, child := range job.ChildJobs() {
		walkJob(child, visit)
	}
}
