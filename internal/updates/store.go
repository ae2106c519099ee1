// Package updates tracks when the sandbox image was last pulled and when
// managed tools were last upgraded, so periodic maintenance can be gated on
// elapsed time instead of running on every session.
package updates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/agentcage/cage/internal/config"
)

// RefreshInterval is how long a pull or upgrade stays fresh.
const RefreshInterval = 24 * time.Hour

const storeName = "updates.json"

// Store is the persisted timestamp record.
type Store struct {
	LastImagePull   time.Time `json:"last_image_pull"`
	LastToolUpgrade time.Time `json:"last_tool_upgrade"`
}

func storePath() (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, storeName), nil
}

// Load reads the timestamp store. A missing or corrupt file yields a zero
// store: worst case, maintenance runs one extra time.
func Load() Store {
	path, err := storePath()
	if err != nil {
		return Store{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}
	}
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return Store{}
	}
	return s
}

// Save writes the timestamp store, creating the data directory if needed.
func Save(s Store) error {
	path, err := storePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ImagePullDue reports whether the sandbox image should be pulled again.
func ImagePullDue(s Store, now time.Time) bool {
	return now.Sub(s.LastImagePull) >= RefreshInterval
}

// ToolUpgradeDue reports whether managed tools should be upgraded again.
func ToolUpgradeDue(s Store, now time.Time) bool {
	return now.Sub(s.LastToolUpgrade) >= RefreshInterval
}

// MarkImagePull records a successful pull at now and persists the store.
func MarkImagePull(s Store, now time.Time) (Store, error) {
	s.LastImagePull = now
	return s, Save(s)
}

// MarkToolUpgrade records a successful upgrade at now and persists the store.
func MarkToolUpgrade(s Store, now time.Time) (Store, error) {
	s.LastToolUpgrade = now
	return s, Save(s)
}
