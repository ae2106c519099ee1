// Package clone implements ephemeral-clone sessions: a repository is
// cloned into a fresh named volume, worked on in a second container, and
// the volume is removed when the session ends.
package clone

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentcage/cage/internal/runtime"
	"github.com/agentcage/cage/internal/sandbox"
)

// Orchestrator drives one ephemeral-clone session through its phases:
// volume creation, clone, optional tool upgrade, interactive work, cleanup.
type Orchestrator struct {
	Runtime   runtime.Runtime
	Assembler *sandbox.Assembler
	Warn      sandbox.WarningSink

	// Upgrade, when set, runs between the clone and work phases.
	Upgrade func(ctx context.Context) error

	// Overridable in tests.
	createVolume func(ctx context.Context, name string) error
	removeVolume func(ctx context.Context, name string) error
}

func (o *Orchestrator) create(ctx context.Context, name string) error {
	if o.createVolume != nil {
		return o.createVolume(ctx, name)
	}
	return runtime.CreateVolume(ctx, o.Runtime, name)
}

func (o *Orchestrator) remove(ctx context.Context, name string) error {
	if o.removeVolume != nil {
		return o.removeVolume(ctx, name)
	}
	return runtime.RemoveVolume(ctx, o.Runtime, name, true)
}

// VolumeName returns a collision-safe volume name for a clone of repoName.
func VolumeName(repoName string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("cage-clone-%s-%s", repoName, suffix)
}

// Run executes a complete ephemeral-clone session and returns the work
// container's exit code. The volume is removed exactly once, on every path
// after it was created: clone failure, upgrade failure, work completion, or
// interrupt. Cleanup failure never masks the session's outcome; it only
// produces a warning with manual removal guidance.
func (o *Orchestrator) Run(ctx context.Context, cloneURL, ref string, command []string, tty, stdinOpen bool) (int, error) {
	repoName, err := sandbox.ExtractRepoName(cloneURL)
	if err != nil {
		return 1, err
	}
	volume := VolumeName(repoName)

	if err := o.create(ctx, volume); err != nil {
		return 1, fmt.Errorf("creating clone volume: %w", err)
	}
	cleaned := false
	cleanup := func() {
		if cleaned {
			return
		}
		cleaned = true
		// Cleanup runs even when ctx was cancelled by an interrupt.
		if err := o.remove(context.Background(), volume); err != nil {
			o.Warn.Warnf("failed to remove clone volume %s: %v", volume, err)
			o.Warn.Warnf("remove it manually with: %s volume rm -f %s",
				strings.Join(o.Runtime.CommandPrefix(), " "), volume)
		}
	}
	defer cleanup()

	o.Warn.Infof("cloning %s", cloneURL)
	cloneSpec := o.Assembler.AssembleClone(cloneURL, volume, repoName, ref)
	code, err := o.Runtime.Run(ctx, cloneSpec)
	if err != nil {
		return 1, fmt.Errorf("clone container: %w", err)
	}
	if code != 0 {
		return code, fmt.Errorf("git clone exited with code %d", code)
	}

	if o.Upgrade != nil {
		if err := o.Upgrade(ctx); err != nil {
			o.Warn.Warnf("tool upgrade failed: %v", err)
		}
	}

	workSpec, err := o.Assembler.AssembleCloneWork(volume, repoName, command, tty, stdinOpen)
	if err != nil {
		return 1, err
	}
	return o.Runtime.Run(ctx, workSpec)
}
