package jit

import "runtime"

// compilerSupported reports whether wazero's compiler engine generates
// native code on the current GOOS/GOARCH. Kept in sync with wazero's
// documented support matrix; everywhere else the interpreter backend is
// the platform default.
func compilerSupported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "windows", "freebsd":
	default:
		return false
	}
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
