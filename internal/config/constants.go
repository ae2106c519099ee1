package config

import (
	"os"
	"path/filepath"
)

// Network modes
const (
	NetworkDefault = "default"
	NetworkNone    = "none"
	NetworkHost    = "host"
	NetworkBridge  = "bridge"
)

// DefaultImage is the sandbox image used when the config does not override it.
// CAGE_RUNTIME_IMAGE wins over both.
const DefaultImage = "ghcr.io/agentcage/cage/runtime:0.x-latest"

// Named volumes that persist tool installs and caches between runs.
const (
	MiseDataVolume = "cage-data"
	CacheVolume    = "cage-cache"
)

// CloneWorkspace is where ephemeral clone volumes are mounted inside the
// sandbox.
const CloneWorkspace = "/workspace"

// SandboxHome is the HOME directory inside the sandbox.
const SandboxHome = "/home"

// ProjectConfigName is the per-project config overlay file.
const ProjectConfigName = ".cage.toml"

// APIKeys is the fixed allow-list of secret variables forwarded from the
// caller's environment when forward_api_keys is enabled.
var APIKeys = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"COPILOT_GITHUB_TOKEN",
	"OPENROUTER_API_KEY",
}

// ToolShortcuts are agent CLIs that get their own top-level command.
var ToolShortcuts = []string{"claude", "codex", "gemini", "opencode"}

// ToolYoloFlags auto-approve tool calls for each agent unless --no-yolo is
// given.
var ToolYoloFlags = map[string][]string{
	"claude":   {"--dangerously-skip-permissions"},
	"codex":    {"--dangerously-bypass-approvals-and-sandbox"},
	"gemini":   {"--yolo"},
	"opencode": {},
}

// Image returns the sandbox image, honoring the CAGE_RUNTIME_IMAGE override.
func Image(cfg *Config) string {
	if img := os.Getenv("CAGE_RUNTIME_IMAGE"); img != "" {
		return img
	}
	if cfg != nil && cfg.Image != "" {
		return cfg.Image
	}
	return DefaultImage
}

// Dir returns the cage config directory (~/.config/cage or the platform
// equivalent).
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cage"), nil
}

// DataDir returns the cage data directory, used for managed worktrees and
// the auto-update timestamp store.
func DataDir() (string, error) {
	if dir := os.Getenv("CAGE_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "cage"), nil
}

// MiseConfigPath is where the bind-mounted mise config lives on the host.
// It is materialized from a packaged template on first run.
func MiseConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mise.toml"), nil
}

// WorktreesRoot is the directory holding hashed per-repository workspace
// roots.
func WorktreesRoot() (string, error) {
	if dir := os.Getenv("CAGE_WORKTREES_DIR"); dir != "" {
		return dir, nil
	}
	data, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, "worktrees"), nil
}
