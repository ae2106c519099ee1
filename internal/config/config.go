package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/viper"
)

// ResourceLimits constrains the sandbox container.
type ResourceLimits struct {
	Memory     string  `mapstructure:"memory" yaml:"memory"`           // e.g. "8g"
	MemorySwap string  `mapstructure:"memory_swap" yaml:"memory_swap"` // empty = same as memory (no swap)
	CPUs       float64 `mapstructure:"cpus" yaml:"cpus"`
	PidsLimit  int     `mapstructure:"pids_limit" yaml:"pids_limit"`
}

// Config is the merged runtime configuration. It is treated as an immutable
// value once loaded; CLI flags produce a new value via ApplyOverrides.
type Config struct {
	// Container runtime preference ("podman", "docker", "" = auto)
	Runtime string `mapstructure:"runtime" yaml:"runtime"`

	// Image overrides the default sandbox image.
	Image string `mapstructure:"image" yaml:"image"`

	// Capability flags gating host resource passthrough
	SSHAgent        bool `mapstructure:"ssh_agent" yaml:"ssh_agent"`
	GitConfig       bool `mapstructure:"git_config" yaml:"git_config"`
	AIConfig        bool `mapstructure:"ai_config" yaml:"ai_config"`
	ContainerSocket bool `mapstructure:"container_socket" yaml:"container_socket"`
	Clipboard       bool `mapstructure:"clipboard" yaml:"clipboard"`
	Display         bool `mapstructure:"display" yaml:"display"`
	DBus            bool `mapstructure:"dbus" yaml:"dbus"`
	GPU             bool `mapstructure:"gpu" yaml:"gpu"`
	Audio           bool `mapstructure:"audio" yaml:"audio"`
	ForwardAPIKeys  bool `mapstructure:"forward_api_keys" yaml:"forward_api_keys"`

	// Isolation
	NetworkMode     string `mapstructure:"network_mode" yaml:"network_mode"` // default, none, host, bridge
	PidMode         string `mapstructure:"pid_mode" yaml:"pid_mode"`
	ReadonlyProject bool   `mapstructure:"readonly_project" yaml:"readonly_project"`

	// Auto-update behavior
	AutoPullImage    bool `mapstructure:"auto_pull_image" yaml:"auto_pull_image"`
	AutoUpgradeTools bool `mapstructure:"auto_upgrade_tools" yaml:"auto_upgrade_tools"`

	Resources ResourceLimits `mapstructure:"resources" yaml:"resources"`

	// Custom mounts ("SOURCE[:TARGET[:OPTIONS]]") and env overrides
	Mounts []string          `mapstructure:"mounts" yaml:"mounts"`
	Env    map[string]string `mapstructure:"env" yaml:"env"`
}

// Load reads the global config file and the project overlay, in that order,
// and returns the merged configuration. A missing file is not an error.
func Load(projectDir string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	if dir, err := Dir(); err == nil {
		v.SetConfigFile(filepath.Join(dir, "config.toml"))
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			if _, ok := err.(*os.PathError); !ok {
				return Config{}, fmt.Errorf("reading global config: %w", err)
			}
		}
	}

	project := filepath.Join(projectDir, ProjectConfigName)
	if _, err := os.Stat(project); err == nil {
		v.SetConfigFile(project)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading project config: %w", err)
		}
	}

	v.SetEnvPrefix("CAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every config key. Viper's AutomaticEnv only
// consults the environment for keys it already knows about, so a key
// without a default would silently ignore its CAGE_* variable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("runtime", "")
	v.SetDefault("image", "")
	v.SetDefault("ssh_agent", false)
	v.SetDefault("git_config", false)
	v.SetDefault("ai_config", false)
	v.SetDefault("container_socket", false)
	v.SetDefault("clipboard", false)
	v.SetDefault("display", false)
	v.SetDefault("dbus", false)
	v.SetDefault("gpu", false)
	v.SetDefault("audio", false)
	v.SetDefault("forward_api_keys", false)
	v.SetDefault("network_mode", NetworkDefault)
	v.SetDefault("pid_mode", "")
	v.SetDefault("readonly_project", false)
	v.SetDefault("auto_pull_image", false)
	v.SetDefault("auto_upgrade_tools", false)
	v.SetDefault("resources.memory", "")
	v.SetDefault("resources.memory_swap", "")
	v.SetDefault("resources.cpus", 0.0)
	v.SetDefault("resources.pids_limit", 2048)
	v.SetDefault("mounts", []string{})
	v.SetDefault("env", map[string]string{})
}

// Validate rejects values the runtime would refuse at launch time.
func (c Config) Validate() error {
	switch c.NetworkMode {
	case "", NetworkDefault, NetworkNone, NetworkHost, NetworkBridge:
	default:
		return fmt.Errorf("invalid network_mode %q", c.NetworkMode)
	}
	for _, limit := range []string{c.Resources.Memory, c.Resources.MemorySwap} {
		if limit == "" {
			continue
		}
		if _, err := units.RAMInBytes(limit); err != nil {
			return fmt.Errorf("invalid memory limit %q: %w", limit, err)
		}
	}
	if c.Resources.CPUs < 0 {
		return fmt.Errorf("invalid cpus limit %v", c.Resources.CPUs)
	}
	if c.Resources.PidsLimit < 0 {
		return fmt.Errorf("invalid pids_limit %d", c.Resources.PidsLimit)
	}
	return nil
}
