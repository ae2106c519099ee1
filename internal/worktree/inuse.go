package worktree

import (
	"encoding/json"
	"os/exec"
	"strings"
)

// psMount decodes one element of a container's Mounts field. Podman emits
// plain path strings, docker emits structured objects; both forms must be
// handled.
type psMount struct {
	path   string
	source string
}

func (m *psMount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.path = s
		return nil
	}
	var obj struct {
		Source      string
		Destination string
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	m.source = obj.Source
	return nil
}

type psContainer struct {
	Mounts []psMount
}

// InUse reports whether any running container mounts the given path. The
// check is advisory only: concurrent use of a worktree is allowed, and any
// failure to query the runtime reads as "not in use".
func InUse(path string, commandPrefix []string) bool {
	if len(commandPrefix) == 0 {
		return false
	}
	args := append(append([]string(nil), commandPrefix[1:]...), "ps", "--format", "json")
	out, err := exec.Command(commandPrefix[0], args...).Output()
	if err != nil {
		return false
	}
	return mountsReference(out, path)
}

func mountsReference(psJSON []byte, path string) bool {
	trimmed := strings.TrimSpace(string(psJSON))
	if trimmed == "" {
		return false
	}
	var containers []psContainer
	if err := json.Unmarshal([]byte(trimmed), &containers); err != nil {
		// Podman emits one array; docker emits one object per line.
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var c psContainer
			if err := json.Unmarshal([]byte(line), &c); err != nil {
				continue
			}
			containers = append(containers, c)
		}
	}
	for _, c := range containers {
		for _, m := range c.Mounts {
			if m.path != "" && strings.Contains(m.path, path) {
				return true
			}
			if m.source != "" && strings.Contains(m.source, path) {
				return true
			}
		}
	}
	return false
}
