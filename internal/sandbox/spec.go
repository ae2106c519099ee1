// Package sandbox assembles container run specifications: which image to
// run, what crosses the sandbox boundary, and under which identity.
package sandbox

import "github.com/agentcage/cage/internal/config"

// MountKind selects the mount mechanism.
type MountKind string

const (
	MountBind   MountKind = "bind"
	MountVolume MountKind = "volume"
	MountTmpfs  MountKind = "tmpfs"
)

// Mount binds a host resource into the sandbox filesystem namespace. For
// MountVolume the source is a runtime-managed volume name, never a
// filesystem path.
type Mount struct {
	Source   string
	Target   string
	Kind     MountKind
	ReadOnly bool
}

func bindMount(source, target string) Mount {
	return Mount{Source: source, Target: target, Kind: MountBind}
}

func bindMountRO(source, target string) Mount {
	return Mount{Source: source, Target: target, Kind: MountBind, ReadOnly: true}
}

func volumeMount(name, target string) Mount {
	return Mount{Source: name, Target: target, Kind: MountVolume}
}

// Specification describes one container invocation. It is built once per
// run and not mutated after assembly; mounts are ordered, and the runtime's
// last-wins semantics resolve duplicate targets in favor of later entries.
type Specification struct {
	Image      string
	Command    []string
	WorkingDir string
	User       string // "uid:gid"
	Env        map[string]string
	Mounts     []Mount

	// NetworkMode is empty for the runtime default, otherwise one of
	// none, host, bridge.
	NetworkMode string
	PidMode     string

	Tty       bool
	StdinOpen bool

	// Supplementary GIDs and device nodes passed through to the sandbox.
	Groups  []int
	Devices []string

	Resources config.ResourceLimits
}

// WarningSink receives non-fatal resource-discovery notices. A missing
// optional host resource never aborts assembly; it is reported here and the
// corresponding mount and environment entries are omitted.
type WarningSink interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}
