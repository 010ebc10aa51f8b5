package privilege

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectUsesCurrentUser(t *testing.T) {
	status := Detect()
	assert.Equal(t, os.Geteuid(), status.EUID)
}

func TestCanDebugOthers(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"root ignores yama", Status{EUID: 0, PtraceScope: 2}, true},
		{"unprivileged with yama off", Status{EUID: 1000, PtraceScope: 0}, true},
		{"unprivileged without yama", Status{EUID: 1000, PtraceScope: -1}, true},
		{"unprivileged restricted", Status{EUID: 1000, PtraceScope: 1}, false},
		{"unprivileged admin-only", Status{EUID: 1000, PtraceScope: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.CanDebugOthers())
		})
	}
}

func TestReadPtraceScope(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ptrace_scope")

	assert.Equal(t, -1, readPtraceScope(path), "missing file")

	assert.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))
	assert.Equal(t, 1, readPtraceScope(path))

	assert.NoError(t, os.WriteFile(path, []byte("bogus"), 0o644))
	assert.Equal(t, -1, readPtraceScope(path))
}
