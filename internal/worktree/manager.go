// Package worktree maps a repository to a stable hashed workspace directory
// and wraps the git worktree plumbing. Git itself stays the source of truth:
// every constructed path is validated against the live listing before use.
package worktree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/agentcage/cage/internal/config"
)

// Error is a failed git-plumbing operation. It carries the underlying
// diagnostic text from git.
type Error struct {
	Op     string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("worktree %s: %s", e.Op, e.Detail)
}

// Manager answers worktree path and containment questions for one project
// directory. The zero project dir means the current working directory.
type Manager struct {
	// Root holds the hashed per-repository workspace directories.
	Root string
	// ProjectDir is where git commands run.
	ProjectDir string
}

// NewManager builds a manager rooted at the configured worktrees directory.
func NewManager(projectDir string) (*Manager, error) {
	root, err := config.WorktreesRoot()
	if err != nil {
		return nil, fmt.Errorf("resolving worktrees root: %w", err)
	}
	return &Manager{Root: root, ProjectDir: projectDir}, nil
}

func (m *Manager) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = m.ProjectDir
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if ee, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(ee.Stderr))
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", &Error{Op: args[0] + " " + strings.Join(args[1:], " "), Detail: detail}
	}
	return strings.TrimSpace(string(out)), nil
}

// GitRoot returns the root of the current repository or worktree.
func (m *Manager) GitRoot() (string, error) {
	out, err := m.git("rev-parse", "--show-toplevel")
	if err != nil {
		return "", &Error{Op: "resolve root", Detail: "not a git repository"}
	}
	return out, nil
}

// MainRepoRoot returns the root of the main repository. For a linked
// worktree this is the repository holding the shared .git directory; for
// the main checkout it equals GitRoot.
func (m *Manager) MainRepoRoot() (string, error) {
	out, err := m.git("rev-parse", "--git-common-dir")
	if err != nil {
		return "", &Error{Op: "resolve main repo", Detail: "not a git repository"}
	}
	gitDir := out
	if !filepath.IsAbs(gitDir) {
		base := m.ProjectDir
		if base == "" {
			base, _ = os.Getwd()
		}
		gitDir = filepath.Join(base, gitDir)
	}
	return filepath.Dir(filepath.Clean(gitDir)), nil
}

// HashRepoRoot returns the first 12 hex characters of the SHA-256 of the
// absolute repository root path. Deterministic: all worktrees of one
// repository share one hashed root.
func HashRepoRoot(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:12]
}

// BaseDir returns Root/hash for the current repository.
func (m *Manager) BaseDir() (string, error) {
	main, err := m.MainRepoRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(m.Root, HashRepoRoot(main)), nil
}

// Add creates a worktree under the hashed base directory and returns its
// absolute path. With a branch name, a new branch is created from HEAD.
func (m *Manager) Add(name, branch string) (string, error) {
	base, err := m.BaseDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("creating worktree base: %w", err)
	}
	path := filepath.Join(base, name)

	args := []string{"worktree", "add"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, path)
	if branch != "" {
		args = append(args, "HEAD")
	}
	if _, err := m.git(args...); err != nil {
		return "", err
	}
	return path, nil
}

// Lookup resolves a worktree name to its path. The constructed path is
// cross-checked against the live git listing and never trusted on its own.
func (m *Manager) Lookup(name string) (string, bool, error) {
	base, err := m.BaseDir()
	if err != nil {
		return "", false, err
	}
	expected := ResolvePath(filepath.Join(base, name))

	records, err := m.List()
	if err != nil {
		return "", false, err
	}
	for _, rec := range records {
		if ResolvePath(rec.Path) == expected {
			return rec.Path, true, nil
		}
	}
	return "", false, nil
}

// Remove deletes a worktree by name via git worktree remove.
func (m *Manager) Remove(name string, force bool) error {
	path, found, err := m.Lookup(name)
	if err != nil {
		return err
	}
	if !found {
		return &Error{Op: "remove", Detail: fmt.Sprintf("worktree %q not found", name)}
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err = m.git(args...)
	return err
}

// Contains reports whether path falls inside the managed workspace area for
// the current repository. Both sides are fully symlink-resolved first, so a
// path reached through an unrelated symlink is classified correctly.
func (m *Manager) Contains(path string) (bool, error) {
	base, err := m.BaseDir()
	if err != nil {
		return false, err
	}
	return isDescendant(ResolvePath(path), ResolvePath(base)), nil
}

// Repair fixes worktree locations after the repository root moved (and with
// it the hash). Worktrees found under a stale hash segment are moved onto
// the current one, git's internal pointers are repaired, and empty stale
// hash directories are pruned. Safe to run repeatedly; a second call does
// nothing.
func (m *Manager) Repair() ([]string, error) {
	main, err := m.MainRepoRoot()
	if err != nil {
		return nil, err
	}
	currentHash := HashRepoRoot(main)
	root := ResolvePath(m.Root)
	currentBase := filepath.Join(root, currentHash)

	records, err := m.List()
	if err != nil {
		return nil, err
	}

	var messages []string
	var movedPaths []string
	for _, rec := range records {
		path := ResolvePath(rec.Path)
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) < 2 {
			continue
		}
		oldHash, name := parts[0], parts[1]
		if oldHash == currentHash {
			continue
		}

		oldPath := filepath.Join(root, oldHash, name)
		if _, err := os.Stat(oldPath); err != nil {
			continue
		}
		if err := os.MkdirAll(currentBase, 0o755); err != nil {
			return messages, fmt.Errorf("creating worktree base: %w", err)
		}
		newPath := filepath.Join(currentBase, name)
		if err := os.Rename(oldPath, newPath); err != nil {
			return messages, fmt.Errorf("moving worktree %q: %w", name, err)
		}
		movedPaths = append(movedPaths, newPath)
		messages = append(messages, fmt.Sprintf("moved worktree %q from %s to %s", name, oldHash, currentHash))
	}

	// Moved worktrees must be named explicitly; a bare repair only fixes the
	// links pointing back at the main tree.
	out, err := m.git(append([]string{"worktree", "repair"}, movedPaths...)...)
	if err != nil {
		return messages, err
	}
	if out != "" {
		messages = append(messages, out)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return messages, nil
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == currentHash {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			messages = append(messages, fmt.Sprintf("removed empty directory for old hash %s", entry.Name()))
		}
	}
	return messages, nil
}

// ResolvePath resolves symlinks, falling back to the cleaned absolute path
// for components that do not exist yet.
func ResolvePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	// Resolve the nearest existing ancestor and reattach the remainder.
	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return filepath.Clean(path)
	}
	return filepath.Join(ResolvePath(dir), base)
}

func isDescendant(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
