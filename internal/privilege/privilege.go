// Package privilege reports whether the agent holds the privileges the
// host debugging backend needs. Cross-process /proc/<pid>/mem access is
// gated by Yama's ptrace_scope on hardened kernels, so the serve
// command checks up front and warns instead of failing on first attach.
package privilege

import (
	"os"
	"strconv"
	"strings"
)

const yamaScopePath = "/proc/sys/kernel/yama/ptrace_scope"

// Status describes the agent's debugging privileges.
type Status struct {
	// EUID is the effective user id the agent runs as.
	EUID int

	// PtraceScope is the Yama ptrace_scope value, or -1 when the
	// kernel does not expose one.
	PtraceScope int
}

// Detect inspects the current process and kernel settings.
func Detect() Status {
	return Status{
		EUID:        os.Geteuid(),
		PtraceScope: readPtraceScope(yamaScopePath),
	}
}

// CanDebugOthers reports whether cross-process memory access is
// expected to work. Root always can. Unprivileged users need Yama
// disabled; scope 1 restricts access to descendants, which covers
// launched processes but not attach targets.
func (s Status) CanDebugOthers() bool {
	if s.EUID == 0 {
		return true
	}
	return s.PtraceScope <= 0
}

func readPtraceScope(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return -1
	}
	scope, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return scope
}
