package config

// Overrides carries CLI flag values. Pointers distinguish "flag not given"
// from an explicit zero value.
type Overrides struct {
	Runtime         *string
	SSHAgent        *bool
	GitConfig       *bool
	AIConfig        *bool
	ContainerSocket *bool
	Clipboard       *bool
	Display         *bool
	DBus            *bool
	GPU             *bool
	Audio           *bool
	ForwardAPIKeys  *bool
	ReadonlyProject *bool
	NetworkMode     *string
	Memory          *string
	CPUs            *float64
	Mounts          []string
	Env             map[string]string
}

// ApplyOverrides merges flag overrides over a base config and returns the
// result. The base is never mutated.
func ApplyOverrides(base Config, ov Overrides) Config {
	out := base

	// Maps and slices are shared in the shallow copy above; replace them so
	// the base stays untouched.
	out.Mounts = append([]string(nil), base.Mounts...)
	out.Env = make(map[string]string, len(base.Env)+len(ov.Env))
	for k, val := range base.Env {
		out.Env[k] = val
	}

	if ov.Runtime != nil {
		out.Runtime = *ov.Runtime
	}
	if ov.SSHAgent != nil {
		out.SSHAgent = *ov.SSHAgent
	}
	if ov.GitConfig != nil {
		out.GitConfig = *ov.GitConfig
	}
	if ov.AIConfig != nil {
		out.AIConfig = *ov.AIConfig
	}
	if ov.ContainerSocket != nil {
		out.ContainerSocket = *ov.ContainerSocket
	}
	if ov.Clipboard != nil {
		out.Clipboard = *ov.Clipboard
	}
	if ov.Display != nil {
		out.Display = *ov.Display
	}
	if ov.DBus != nil {
		out.DBus = *ov.DBus
	}
	if ov.GPU != nil {
		out.GPU = *ov.GPU
	}
	if ov.Audio != nil {
		out.Audio = *ov.Audio
	}
	if ov.ForwardAPIKeys != nil {
		out.ForwardAPIKeys = *ov.ForwardAPIKeys
	}
	if ov.ReadonlyProject != nil {
		out.ReadonlyProject = *ov.ReadonlyProject
	}
	if ov.NetworkMode != nil {
		out.NetworkMode = *ov.NetworkMode
	}
	if ov.Memory != nil {
		out.Resources.Memory = *ov.Memory
	}
	if ov.CPUs != nil {
		out.Resources.CPUs = *ov.CPUs
	}
	out.Mounts = append(out.Mounts, ov.Mounts...)
	for k, val := range ov.Env {
		out.Env[k] = val
	}
	return out
}
