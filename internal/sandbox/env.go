package sandbox

import (
	"os"
	"path/filepath"

	"github.com/agentcage/cage/internal/config"
	"github.com/agentcage/cage/internal/hostcap"
)

// buildEnv assembles the sandbox environment. User-supplied overrides are
// applied last and always win.
func (a *Assembler) buildEnv(projectDir string) map[string]string {
	env := map[string]string{
		"HOME":         config.SandboxHome,
		"PROJECT_PATH": projectDir,
		"CAGE":         "1",
		// Keep npm's cache on the persistent cache volume.
		"npm_config_cache": config.SandboxHome + "/.cache/npm",
		"MISE_DATA_DIR":    config.SandboxHome + "/.local/share/mise",
		"MISE_CACHE_DIR":   config.SandboxHome + "/.cache/mise",
		// Trust the project's mise config and answer its prompts. A
		// deliberate convenience/risk tradeoff: the sandbox boundary is the
		// containment story, not the trust prompt.
		"MISE_TRUSTED_CONFIG_PATHS": projectDir,
		"MISE_YES":                  "1",
	}

	if term := os.Getenv("TERM"); term != "" {
		env["TERM"] = term
	}
	if colorterm := os.Getenv("COLORTERM"); colorterm != "" {
		env["COLORTERM"] = colorterm
	}

	if a.cfg.ForwardAPIKeys {
		for _, key := range config.APIKeys {
			if value := os.Getenv(key); value != "" {
				env[key] = value
			}
		}
	}

	if a.cfg.SSHAgent && a.caps.SSHAgent != "" {
		env["SSH_AUTH_SOCK"] = "/ssh-agent"
		// Route git SSH signing through ssh-keygen and the agent instead of
		// a host-only signer binary.
		env["GIT_CONFIG_COUNT"] = "1"
		env["GIT_CONFIG_KEY_0"] = "gpg.ssh.program"
		env["GIT_CONFIG_VALUE_0"] = "ssh-keygen"
	}

	if (a.cfg.Display || a.cfg.Clipboard) && a.caps.HasDisplay {
		a.addDisplayEnv(env)
	}

	if a.cfg.DBus && a.caps.DBus != "" {
		env["DBUS_SESSION_BUS_ADDRESS"] = "unix:path=" + a.caps.DBus
	}

	if a.cfg.Audio {
		a.addAudioEnv(env)
	}

	for k, v := range a.cfg.Env {
		env[k] = v
	}
	return env
}

// addDisplayEnv mirrors the display mounts: sockets are bound at their host
// paths, so the host's coordinates work unchanged inside the sandbox.
func (a *Assembler) addDisplayEnv(env map[string]string) {
	d := a.caps.Display
	switch d.Kind {
	case hostcap.DisplayWayland:
		env["WAYLAND_DISPLAY"] = d.WaylandDisplay
		env["XDG_RUNTIME_DIR"] = filepath.Dir(d.Socket)
	case hostcap.DisplayX11:
		env["DISPLAY"] = d.XDisplay
		if d.Authority != "" {
			env["XAUTHORITY"] = d.Authority
		}
	}
}

func (a *Assembler) addAudioEnv(env map[string]string) {
	for _, sock := range a.caps.Audio {
		switch sock.Kind {
		case hostcap.AudioPipeWirePulse, hostcap.AudioPulse:
			env["PULSE_SERVER"] = "unix:" + sock.Path
		case hostcap.AudioPipeWire:
			env["PIPEWIRE_RUNTIME_DIR"] = filepath.Dir(sock.Path)
		}
	}
}
