package jobtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-mesh/remora/internal/sysapi"
	"github.com/remora-mesh/remora/internal/sysapi/mocksys"
	"github.com/remora-mesh/remora/internal/testutil"
)

type startRecorder struct {
	filters []string
	koids   []sysapi.Koid
}

func (r *startRecorder) OnProcessStart(filter string, p sysapi.Process) {
	r.filters = append(r.filters, filter)
	r.koids = append(r.koids, p.Koid())
}

// buildTree creates the nested layout used by the multi-match scenario:
//
//	root:      root-p1
//	job1:      job1-p1, job1-other
//	job1/job11:  job11-p1
//	job2:      unrelated
//	job1/job12/job121: job121-p1
func buildTree(s *mocksys.System) {
	root := s.Root()
	s.AddProcess(root, 100, "root-p1")

	job1 := s.AddJob(root, 2, "job1")
	s.AddProcess(job1, 101, "job1-p1")
	s.AddProcess(job1, 102, "job1-other")

	job11 := s.AddJob(job1, 3, "job11")
	s.AddProcess(job11, 103, "job11-p1")

	job2 := s.AddJob(root, 4, "job2")
	s.AddProcess(job2, 104, "unrelated")

	job12 := s.AddJob(job1, 5, "job12")
	job121 := s.AddJob(job12, 6, "job121")
	s.AddProcess(job121, 105, "job121-p1")
}

func TestSetFiltersMatchesNestedJobs(t *testing.T) {
	s := mocksys.NewSystem()
	buildTree(s)

	rec := &startRecorder{}
	j := New(s.RootJob(), rec, testutil.NewTestLogger(t))

	matched, err := j.SetFilters([]string{"p1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []sysapi.Koid{100, 101, 103, 105}, matched,
		"all p1 processes and only those must match, recursively")
	assert.Empty(t, rec.koids, "SetFilters reports matches without invoking the start handler")
}

func TestSetFiltersEmptyMatchesNothing(t *testing.T) {
	s := mocksys.NewSystem()
	buildTree(s)

	j := New(s.RootJob(), &startRecorder{}, testutil.NewTestLogger(t))

	matched, err := j.SetFilters(nil)
	require.NoError(t, err)
	assert.Empty(t, matched, "empty filter set matches nothing, not everything")
}

func TestSetFiltersRegex(t *testing.T) {
	s := mocksys.NewSystem()
	buildTree(s)

	j := New(s.RootJob(), &startRecorder{}, testutil.NewTestLogger(t))

	matched, err := j.SetFilters([]string{"re:^job1-"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []sysapi.Koid{101, 102}, matched)
}

func TestSetFiltersInvalidPatternRejected(t *testing.T) {
	s := mocksys.NewSystem()
	buildTree(s)

	j := New(s.RootJob(), &startRecorder{}, testutil.NewTestLogger(t))

	_, err := j.SetFilters([]string{"ok", "re:["})
	require.Error(t, err, "an invalid pattern must be rejected at registration")
	assert.Equal(t, 0, j.FilterCount(), "no pattern of a rejected call is stored")

	// A previously valid set survives a later invalid call.
	_, err = j.SetFilters([]string{"p1"})
	require.NoError(t, err)
	_, err = j.SetFilters([]string{"re:("})
	require.Error(t, err)
	assert.Equal(t, 1, j.FilterCount())
}

func TestProcessStartingEvaluatedIncrementally(t *testing.T) {
	s := mocksys.NewSystem()
	root := s.Root()
	job1 := s.AddJob(root, 2, "job1")

	rec := &startRecorder{}
	j := New(s.RootJob(), rec, testutil.NewTestLogger(t))

	_, err := j.SetFilters([]string{"worker"})
	require.NoError(t, err)

	s.StartProcess(job1, 200, "worker-a")
	s.StartProcess(job1, 201, "helper")
	s.StartProcess(root, 202, "worker-b")

	assert.Equal(t, []sysapi.Koid{200, 202}, rec.koids)
	assert.Equal(t, []string{"worker", "worker"}, rec.filters)
}

func TestNoMatchWithoutFilters(t *testing.T) {
	s := mocksys.NewSystem()
	rec := &startRecorder{}
	New(s.RootJob(), rec, testutil.NewTestLogger(t))

	s.StartProcess(s.Root(), 300, "anything")
	assert.Empty(t, rec.koids)
}

func TestFilterMatchesNameNotPath(t *testing.T) {
	f, err := CompileFilter("bin")
	require.NoError(t, err)
	assert.True(t, f.Matches("binrunner"))

	f, err = CompileFilter("re:^runner$")
	require.NoError(t, err)
	assert.True(t, f.Matches("runner"))
	assert.False(t, f.Matches("/usr/bin/runner"), "regex anchors see the name only")
}

func TestCompileFilterEmpty(t *testing.T) {
	_, err := CompileFilter("")
	assert.Error(t, err)
	_, err = CompileFilter("re:")
	assert.Error(t, err)
}
