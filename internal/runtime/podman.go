package runtime

import (
	"context"
	"os/exec"

	"github.com/agentcage/cage/internal/sandbox"
)

// Podman runs specifications through the podman CLI.
type Podman struct{}

func (p *Podman) Name() string { return "podman" }

func (p *Podman) IsAvailable() bool {
	_, err := exec.LookPath("podman")
	return err == nil
}

func (p *Podman) CommandPrefix() []string { return []string{"podman"} }

// Build translates the specification into a podman run argv. Raw host
// identity files are bind-mounted, which forces two choices here: keep-id
// user-namespace mapping so the host UID maps to itself inside rootless
// podman, and disabled SELinux path labeling so the mounts are readable.
func (p *Podman) Build(spec sandbox.Specification) []string {
	args := []string{"podman", "run", "--rm", "--userns=keep-id", "--security-opt", "label=disable"}

	// Podman inherits the caller's supplementary groups with one flag
	// instead of enumerating GIDs.
	if len(spec.Groups) > 0 {
		args = append(args, "--group-add", "keep-groups")
	}

	args = append(args, commonArgs(spec)...)
	args = append(args, spec.Image)
	args = append(args, spec.Command...)
	return args
}

func (p *Podman) Run(ctx context.Context, spec sandbox.Specification) (int, error) {
	return runArgv(ctx, p.Build(spec))
}
