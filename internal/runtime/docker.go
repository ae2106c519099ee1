package runtime

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/docker/docker/client"

	"github.com/agentcage/cage/internal/hostcap"
	"github.com/agentcage/cage/internal/sandbox"
)

// Docker runs specifications through the docker CLI. When the daemon
// socket is not directly accessible but sudo is present, every invocation
// is transparently prefixed with it.
type Docker struct{}

func (d *Docker) Name() string { return "docker" }

func (d *Docker) IsAvailable() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}

func (d *Docker) CommandPrefix() []string {
	if d.socketAccessible() {
		return []string{"docker"}
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return []string{"sudo", "docker"}
	}
	return []string{"docker"}
}

// socketAccessible probes daemon reachability: an API ping first (covers
// DOCKER_HOST in all its forms), then a plain permission check on the
// default socket paths.
func (d *Docker) socketAccessible() bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		defer cli.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Ping(ctx); err == nil {
			return true
		}
	}
	for _, sock := range hostcap.RuntimeSocketCandidates(true) {
		if hostcap.SocketAccessible(sock) {
			return true
		}
	}
	return false
}

func (d *Docker) Build(spec sandbox.Specification) []string {
	args := append(append([]string(nil), d.CommandPrefix()...), "run", "--rm")

	// Docker has no group-inheritance flag; GIDs are enumerated.
	for _, gid := range spec.Groups {
		args = append(args, "--group-add", strconv.Itoa(gid))
	}

	args = append(args, commonArgs(spec)...)
	args = append(args, spec.Image)
	args = append(args, spec.Command...)
	return args
}

func (d *Docker) Run(ctx context.Context, spec sandbox.Specification) (int, error) {
	return runArgv(ctx, d.Build(spec))
}
