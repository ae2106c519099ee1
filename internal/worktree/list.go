package worktree

import (
	"path/filepath"
	"strings"
)

// Record is one entry from the git worktree listing.
type Record struct {
	// Name is the directory name under the hashed base, filled in only for
	// managed worktrees.
	Name     string
	Path     string
	Head     string
	Branch   string
	Bare     bool
	Detached bool
}

// List returns all worktrees of the current repository, parsed from the
// porcelain listing.
func (m *Manager) List() ([]Record, error) {
	out, err := m.git("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// parsePorcelain parses the blank-line-delimited stanza format: each record
// has a "worktree <path>" line, a "HEAD <sha>" line, and exactly one of
// "branch <ref>", "bare", or "detached".
func parsePorcelain(out string) []Record {
	var records []Record
	var cur Record
	var open bool

	flush := func() {
		if open {
			records = append(records, cur)
			cur = Record{}
			open = false
		}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
			open = true
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
			open = true
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(line, "branch ")
			open = true
		case line == "bare":
			cur.Bare = true
			open = true
		case line == "detached":
			cur.Detached = true
			open = true
		}
	}
	flush()
	return records
}

// Managed returns the worktrees living under this repository's hashed base
// directory, with their names filled in.
func (m *Manager) Managed() ([]Record, error) {
	base, err := m.BaseDir()
	if err != nil {
		return nil, err
	}
	base = ResolvePath(base)

	all, err := m.List()
	if err != nil {
		return nil, err
	}

	var managed []Record
	for _, rec := range all {
		path := ResolvePath(rec.Path)
		if !isDescendant(path, base) || path == base {
			continue
		}
		rec.Name = filepath.Base(path)
		managed = append(managed, rec)
	}
	return managed, nil
}
