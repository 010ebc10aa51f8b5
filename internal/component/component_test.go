package component

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-mesh/remora/internal/testutil"
)

func TestIsComponentURL(t *testing.T) {
	m := NewExecManager(testutil.NewTestLogger(t))

	tests := []struct {
		name string
		arg  string
		want bool
	}{
		{"scheme and path", "remora-pkg:///bin/hello", true},
		{"scheme and host", "remora-pkg://hello", true},
		{"plain path", "/bin/hello", false},
		{"relative path", "hello", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsComponentURL(tt.arg))
		})
	}
}

func TestPrepareSynthesizesFilterAndID(t *testing.T) {
	m := NewExecManager(testutil.NewTestLogger(t))

	first, err := m.Prepare([]string{"remora-pkg:///pkg/demo/true_bin", "--flag"})
	require.NoError(t, err)
	assert.Equal(t, "true_bin", first.Name)
	assert.Equal(t, "true_bin", first.Filter)
	assert.Equal(t, []string{"remora-pkg:///pkg/demo/true_bin", "--flag"}, first.Argv)

	second, err := m.Prepare([]string{"remora-pkg:///pkg/demo/true_bin"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ComponentID, second.ComponentID,
		"concurrent launches of the same component must get distinct ids")
}

func TestPrepareHostOnlyURL(t *testing.T) {
	m := NewExecManager(testutil.NewTestLogger(t))

	info, err := m.Prepare([]string{"remora-pkg://hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", info.Name)
}

func TestPrepareRejectsBadInput(t *testing.T) {
	m := NewExecManager(testutil.NewTestLogger(t))

	_, err := m.Prepare(nil)
	assert.Error(t, err)

	_, err = m.Prepare([]string{"/bin/true"})
	assert.Error(t, err, "raw paths are not component URLs")

	_, err = m.Prepare([]string{"remora-pkg://"})
	assert.Error(t, err)
}

func TestLaunchRunsAndReportsExit(t *testing.T) {
	m := NewExecManager(testutil.NewTestLogger(t))

	info, err := m.Prepare([]string{"remora-pkg:///bin/sh", "-c", "echo out; echo err 1>&2"})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		got    = make(chan struct{})
		stdout []byte
		stderr []byte
	)
	ioFn := func(stream Stream, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		switch stream {
		case Stdout:
			stdout = append(stdout, data...)
		case Stderr:
			stderr = append(stderr, data...)
		}
	}

	ctrl, err := m.Launch(info, ioFn, func(err error) {
		assert.NoError(t, err)
		close(got)
	})
	require.NoError(t, err)
	require.NotNil(t, ctrl)

	<-got
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(stdout) == "out\n" && string(stderr) == "err\n"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLaunchMissingBinary(t *testing.T) {
	m := NewExecManager(testutil.NewTestLogger(t))

	info, err := m.Prepare([]string{"remora-pkg:///no/such/binary"})
	require.NoError(t, err)

	_, err = m.Launch(info, nil, nil)
	assert.Error(t, err)
}
