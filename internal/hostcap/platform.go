// Package hostcap probes the host for resources that may be passed through
// into the sandbox. Every probe is read-only: it inspects environment
// variables and filesystem state and reports absence instead of failing.
package hostcap

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Platform is the host flavor the sandbox runs on.
type Platform int

const (
	Linux Platform = iota
	MacOS
	// WSL2 is a refinement of Linux: every Linux probe still applies, but a
	// few resources (session D-Bus) are known not to work there.
	WSL2
	Unsupported
)

func (p Platform) String() string {
	switch p {
	case Linux:
		return "linux"
	case MacOS:
		return "macos"
	case WSL2:
		return "wsl2"
	default:
		return "unsupported"
	}
}

// IsLinux reports whether Linux semantics apply (WSL2 included).
func (p Platform) IsLinux() bool { return p == Linux || p == WSL2 }

// Overridable in tests.
var (
	goos            = runtime.GOOS
	procVersionPath = "/proc/version"
)

// Classify detects the host platform. WSL2 is distinguished from plain
// Linux via the kernel version marker in /proc/version.
func Classify() Platform {
	switch goos {
	case "linux":
		if isWSL() {
			return WSL2
		}
		return Linux
	case "darwin":
		return MacOS
	default:
		return Unsupported
	}
}

func isWSL() bool {
	data, err := os.ReadFile(procVersionPath)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), "microsoft")
}

// PlatformError reports a wholly unsupported host. It is the only
// classification callers should treat as fatal.
type PlatformError struct {
	OS string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("cage does not support %s natively; run it inside WSL2 with podman or docker installed", e.OS)
}

// CheckSupported is called once at startup.
func CheckSupported() error {
	if Classify() == Unsupported {
		return &PlatformError{OS: goos}
	}
	return nil
}

// Identity returns the uid:gid pair the sandbox user should map to. On
// Linux this is the real identity; Docker Desktop's VM on macOS does not
// honor host UIDs, so a fixed conventional pair is used there and on any
// other host.
func Identity() (uid, gid int) {
	if Classify().IsLinux() {
		return os.Getuid(), os.Getgid()
	}
	return 1000, 1000
}
