package runtime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agentcage/cage/internal/sandbox"
)

// FormatMount serializes a mount for the --mount flag. One routine shared
// by both backends so their serialization can never drift apart.
func FormatMount(m sandbox.Mount) string {
	parts := []string{
		"type=" + string(m.Kind),
		"source=" + m.Source,
		"target=" + m.Target,
	}
	if m.ReadOnly {
		parts = append(parts, "readonly")
	}
	return strings.Join(parts, ",")
}

// commonArgs emits the flags whose syntax both backends share: tty/stdin,
// user, working dir, network, pid mode, environment, mounts, devices, and
// resource limits. Environment keys are sorted for stable argv output.
func commonArgs(spec sandbox.Specification) []string {
	var args []string

	if spec.Tty {
		args = append(args, "-t")
	}
	if spec.StdinOpen {
		args = append(args, "-i")
	}

	args = append(args, "--user", spec.User)
	args = append(args, "--workdir", spec.WorkingDir)

	if spec.NetworkMode != "" {
		args = append(args, "--network", spec.NetworkMode)
	}
	if spec.PidMode != "" {
		args = append(args, "--pid", spec.PidMode)
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	for _, m := range spec.Mounts {
		args = append(args, "--mount", FormatMount(m))
	}

	for _, dev := range spec.Devices {
		args = append(args, "--device", dev)
	}

	if spec.Resources.Memory != "" {
		args = append(args, "--memory", spec.Resources.Memory)
		// Default the swap ceiling to the memory limit, disabling swap.
		swap := spec.Resources.MemorySwap
		if swap == "" {
			swap = spec.Resources.Memory
		}
		args = append(args, "--memory-swap", swap)
	}
	if spec.Resources.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.Resources.CPUs, 'f', -1, 64))
	}
	if spec.Resources.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", spec.Resources.PidsLimit))
	}

	return args
}
