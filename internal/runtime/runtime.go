// Package runtime translates sandbox specifications into argument vectors
// for a container runtime CLI and runs them as blocking foreground
// subprocesses.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/agentcage/cage/internal/sandbox"
)

// Runtime is a container runtime backend. Both implementations build one
// `run` argv per specification and execute it with inherited stdio, so the
// sandboxed TTY behaves like a native shell and interrupts reach the child
// through normal process-group delivery.
type Runtime interface {
	Name() string
	IsAvailable() bool
	// CommandPrefix is the argv prefix for auxiliary invocations (volume
	// management, image pulls, container listings).
	CommandPrefix() []string
	Build(spec sandbox.Specification) []string
	Run(ctx context.Context, spec sandbox.Specification) (int, error)
}

// UnavailableError means no usable backend was found. Fatal at startup.
type UnavailableError struct {
	Tried []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("no container runtime found (tried %s); install podman or docker", strings.Join(e.Tried, ", "))
}

// Select returns the runtime to use. An explicit preference is honored
// first; otherwise backends are probed in a fixed priority order.
func Select(preference string) (Runtime, error) {
	backends := []Runtime{&Podman{}, &Docker{}}
	if preference != "" {
		for _, b := range backends {
			if b.Name() == preference && b.IsAvailable() {
				return b, nil
			}
		}
	}
	var tried []string
	for _, b := range backends {
		if b.IsAvailable() {
			return b, nil
		}
		tried = append(tried, b.Name())
	}
	return nil, &UnavailableError{Tried: tried}
}

// runArgv executes argv as a blocking subprocess with inherited stdio and
// returns its exit code.
func runArgv(ctx context.Context, argv []string) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode(), nil
	}
	return 1, fmt.Errorf("running %s: %w", argv[0], err)
}

// Exec runs an auxiliary runtime command (prefix + args) and captures its
// combined output for diagnostics.
func Exec(ctx context.Context, rt Runtime, args ...string) (string, error) {
	prefix := rt.CommandPrefix()
	argv := append(append([]string(nil), prefix...), args...)
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", rt.Name(), strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// CreateVolume creates a named runtime-managed volume.
func CreateVolume(ctx context.Context, rt Runtime, name string) error {
	_, err := Exec(ctx, rt, "volume", "create", name)
	return err
}

// RemoveVolume removes a named volume, forcing if requested.
func RemoveVolume(ctx context.Context, rt Runtime, name string, force bool) error {
	args := []string{"volume", "rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, name)
	_, err := Exec(ctx, rt, args...)
	return err
}

// PullImage pulls the sandbox image, streaming progress to the caller's
// terminal.
func PullImage(ctx context.Context, rt Runtime, image string) error {
	argv := append(append([]string(nil), rt.CommandPrefix()...), "pull", image)
	code, err := runArgv(ctx, argv)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%s pull exited with code %d", rt.Name(), code)
	}
	return nil
}
