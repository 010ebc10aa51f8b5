package sysapi

// BreakInstruction returns the software breakpoint instruction for the
// given architecture (GOARCH naming): INT3 on x86-64, BRK #0 on arm64,
// encoded little-endian. Returns nil for unknown architectures.
func BreakInstruction(arch string) []byte {
	switch arch {
	case "amd64", "386":
		return []byte{0xCC}
	case "arm64":
		return []byte{0x00, 0x00, 0x20, 0xD4}
	}
	return nil
}

// DefaultHardwareBreakpointSlots returns the per-thread debug-register
// budget for execution breakpoints on the given architecture. x86-64 has
// four DR registers; ARMv8 guarantees at least six breakpoint register
// pairs.
func DefaultHardwareBreakpointSlots(arch string) int {
	switch arch {
	case "amd64", "386":
		return 4
	case "arm64":
		return 6
	}
	return 0
}

// DefaultHardwareWatchpointSlots returns the per-thread budget for write
// watchpoints. x86-64 shares the four DR registers; ARMv8 guarantees at
// least four watchpoint register pairs.
func DefaultHardwareWatchpointSlots(arch string) int {
	switch arch {
	case "amd64", "386":
		return 4
	case "arm64":
		return 4
	}
	return 0
}
