package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashRepoRoot(t *testing.T) {
	h := HashRepoRoot("/home/user/project")
	if len(h) != 12 {
		t.Fatalf("hash length = %d, want 12", len(h))
	}
	for _, c := range h {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("hash %q contains non-hex character", h)
		}
	}
	if h != HashRepoRoot("/home/user/project") {
		t.Error("hash is not deterministic")
	}
	if h == HashRepoRoot("/home/user/other") {
		t.Error("different roots hash to the same value")
	}
}

func TestIsDescendant(t *testing.T) {
	tests := []struct {
		path, base string
		want       bool
	}{
		{"/a/b/c", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/bc", "/a/b", false},
		{"/a", "/a/b", false},
		{"/other", "/a/b", false},
	}
	for _, tt := range tests {
		if got := isDescendant(tt.path, tt.base); got != tt.want {
			t.Errorf("isDescendant(%q, %q) = %v, want %v", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestResolvePathSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.MkdirAll(real, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	// TempDir itself may live behind a symlink (macOS /tmp); compare both
	// sides resolved.
	if got, want := ResolvePath(link), ResolvePath(real); got != want {
		t.Errorf("ResolvePath(%q) = %q, want %q", link, got, want)
	}

	// Nonexistent leaf under a symlinked dir still resolves the ancestor.
	missing := filepath.Join(link, "new-worktree")
	want := filepath.Join(ResolvePath(real), "new-worktree")
	if got := ResolvePath(missing); got != want {
		t.Errorf("ResolvePath(%q) = %q, want %q", missing, got, want)
	}
}

// initRepo creates a git repository with one commit and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README")
	run("commit", "-m", "initial")
	return dir
}

func testManager(t *testing.T, projectDir string) *Manager {
	t.Helper()
	root := filepath.Join(t.TempDir(), "worktrees")
	t.Setenv("CAGE_WORKTREES_DIR", root)
	mgr, err := NewManager(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func TestAddLookupRemove(t *testing.T) {
	repo := initRepo(t)
	mgr := testManager(t, repo)

	path, err := mgr.Add("fix-parser", "fix-parser")
	if err != nil {
		t.Fatal(err)
	}
	base, err := mgr.BaseDir()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != base {
		t.Errorf("worktree at %q, want under base %q", path, base)
	}

	got, found, err := mgr.Lookup("fix-parser")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}
	if got != path {
		t.Errorf("Lookup() = %q, want %q", got, path)
	}

	// A name whose path was never registered with git does not resolve,
	// even if a directory happens to exist there.
	if err := os.MkdirAll(filepath.Join(base, "impostor"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, found, err := mgr.Lookup("impostor"); err != nil || found {
		t.Errorf("Lookup(impostor) = %v, %v; want not found", found, err)
	}

	managed, err := mgr.Managed()
	if err != nil {
		t.Fatal(err)
	}
	if len(managed) != 1 || managed[0].Name != "fix-parser" {
		t.Errorf("Managed() = %+v", managed)
	}

	if err := mgr.Remove("fix-parser", false); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := mgr.Lookup("fix-parser"); found {
		t.Error("worktree still resolvable after Remove")
	}
}

func TestRemoveUnknown(t *testing.T) {
	repo := initRepo(t)
	mgr := testManager(t, repo)

	err := mgr.Remove("nothing-here", false)
	if err == nil {
		t.Fatal("Remove() of an unknown worktree should fail")
	}
	if _, ok := err.(*Error); !ok {
		t.Errorf("error type = %T, want *Error", err)
	}
}

func TestContains(t *testing.T) {
	repo := initRepo(t)
	mgr := testManager(t, repo)

	path, err := mgr.Add("inside", "inside")
	if err != nil {
		t.Fatal(err)
	}

	contained, err := mgr.Contains(path)
	if err != nil || !contained {
		t.Errorf("Contains(%q) = %v, %v; want true", path, contained, err)
	}
	contained, err = mgr.Contains(repo)
	if err != nil || contained {
		t.Errorf("Contains(repo) = %v, %v; want false", contained, err)
	}
}

func TestContainsThroughSymlink(t *testing.T) {
	repo := initRepo(t)
	mgr := testManager(t, repo)

	path, err := mgr.Add("linked", "linked")
	if err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(t.TempDir(), "shortcut")
	if err := os.Symlink(path, link); err != nil {
		t.Fatal(err)
	}
	contained, err := mgr.Contains(link)
	if err != nil || !contained {
		t.Errorf("Contains through symlink = %v, %v; want true", contained, err)
	}
}

func TestMainRepoRootFromWorktree(t *testing.T) {
	repo := initRepo(t)
	mgr := testManager(t, repo)

	path, err := mgr.Add("wt", "wt")
	if err != nil {
		t.Fatal(err)
	}

	// Resolved from inside the linked worktree, the main repo is still found.
	sub := &Manager{Root: mgr.Root, ProjectDir: path}
	main, err := sub.MainRepoRoot()
	if err != nil {
		t.Fatal(err)
	}
	if ResolvePath(main) != ResolvePath(repo) {
		t.Errorf("MainRepoRoot() = %q, want %q", main, repo)
	}
}

func TestRepairAfterRepoMove(t *testing.T) {
	repo := initRepo(t)
	mgr := testManager(t, repo)

	if _, err := mgr.Add("fix", "fix"); err != nil {
		t.Fatal(err)
	}
	oldBase, err := mgr.BaseDir()
	if err != nil {
		t.Fatal(err)
	}

	// Moving the repository changes its hash, stranding the worktree under
	// the old hash directory.
	moved := filepath.Join(t.TempDir(), "moved-repo")
	if err := os.Rename(repo, moved); err != nil {
		t.Fatal(err)
	}
	mgr.ProjectDir = moved

	newBase, err := mgr.BaseDir()
	if err != nil {
		t.Fatal(err)
	}
	if newBase == oldBase {
		t.Fatal("moving the repo should change the hashed base")
	}

	messages, err := mgr.Repair()
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) == 0 {
		t.Error("Repair() after a move should report work done")
	}
	if _, err := os.Stat(filepath.Join(newBase, "fix")); err != nil {
		t.Errorf("worktree not moved to new base: %v", err)
	}

	// The repaired worktree resolves and the listing is consistent again.
	if _, found, err := mgr.Lookup("fix"); err != nil || !found {
		t.Errorf("Lookup after repair = %v, %v", found, err)
	}

	// A second repair is a no-op.
	messages, err = mgr.Repair()
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range messages {
		if strings.Contains(msg, "moved worktree") {
			t.Errorf("second Repair() still moved something: %q", msg)
		}
	}
}
