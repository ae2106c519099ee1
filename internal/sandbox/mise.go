package sandbox

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentcage/cage/internal/config"
)

//go:embed mise.toml
var defaultMiseConfig []byte

// EnsureMiseConfig materializes the default mise config from the packaged
// template if no config exists yet, and returns its path. Idempotent: an
// existing file is never touched.
func EnsureMiseConfig(sink WarningSink) (string, error) {
	path, err := config.MiseConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving mise config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, defaultMiseConfig, 0o644); err != nil {
		return "", fmt.Errorf("writing default mise config: %w", err)
	}
	sink.Infof("created default mise config at %s", path)
	sink.Infof("edit this file to customize which tools are available in the sandbox")
	return path, nil
}
