package hostcap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// SSHAgentSocket locates the host SSH agent socket. $SSH_AUTH_SOCK wins when
// it points at an existing socket; on macOS the launchd per-session socket
// directory is globbed as a fallback.
func SSHAgentSocket() (string, bool) {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if _, err := os.Stat(sock); err == nil {
			return sock, true
		}
	}
	if Classify() == MacOS {
		matches, _ := filepath.Glob("/private/tmp/com.apple.launchd.*/Listeners")
		for _, m := range matches {
			if _, err := os.Stat(m); err == nil {
				return m, true
			}
		}
	}
	return "", false
}

// RuntimeSocketCandidates returns container runtime socket paths in probe
// order. A unix:// DOCKER_HOST override takes absolute priority and
// short-circuits the platform defaults. The caller is responsible for
// testing existence and picking the first hit.
func RuntimeSocketCandidates(dockerOnly bool) []string {
	if host := os.Getenv("DOCKER_HOST"); strings.HasPrefix(host, "unix://") {
		return []string{strings.TrimPrefix(host, "unix://")}
	}

	var paths []string
	if Classify() == MacOS {
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".docker/run/docker.sock"))
		}
		paths = append(paths, "/var/run/docker.sock")
		return paths
	}

	uid := os.Getuid()
	if !dockerOnly {
		paths = append(paths,
			fmt.Sprintf("/run/user/%d/podman/podman.sock", uid),
			"/run/podman/podman.sock",
		)
	}
	paths = append(paths, "/var/run/docker.sock", "/run/docker.sock")
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "docker.sock"))
	}
	return paths
}

// FirstRuntimeSocket returns the first candidate that exists on disk.
func FirstRuntimeSocket(dockerOnly bool) (string, bool) {
	for _, p := range RuntimeSocketCandidates(dockerOnly) {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// SocketAccessible reports whether the calling user can read and write the
// socket at path.
func SocketAccessible(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return unix.Access(path, unix.R_OK|unix.W_OK) == nil
}

// FileGroup returns the owning GID of path, or false if it cannot be
// determined.
func FileGroup(path string) (int, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false
	}
	return int(st.Gid), true
}

// IdentityFilesPresent gates the Linux-only /etc/passwd and /etc/group
// passthrough mounts.
func IdentityFilesPresent() bool {
	for _, p := range []string{"/etc/passwd", "/etc/group"} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
