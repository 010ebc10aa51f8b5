package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runShow(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"show"}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestShowDefaults(t *testing.T) {
	out := runShow(t)
	assert.Contains(t, out, "address: 127.0.0.1")
	assert.Contains(t, out, "port: 2345")
	assert.Contains(t, out, "level: info")
}

func TestShowMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  port: 9229\n"), 0o644))
	t.Setenv("REMORA_LOG_LEVEL", "debug")

	out := runShow(t, "--config", path)
	assert.Contains(t, out, "port: 9229", "file value applied")
	assert.Contains(t, out, "level: debug", "env override applied")
}

func TestShowRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: ["), 0o644))

	cmd := NewConfigCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"show", "--config", path})
	assert.Error(t, cmd.Execute())
}
