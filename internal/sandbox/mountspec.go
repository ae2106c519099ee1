package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// ParseMountSpec parses the compact user mount syntax
// SOURCE[:TARGET[:OPTIONS]]. The source supports ~ and project-relative
// expansion; the target defaults to the source. OPTIONS currently
// recognizes only the read-only token, matched as a substring of the
// options field ("ro" inside a longer token also matches; kept for
// compatibility with existing configs).
func ParseMountSpec(spec, projectDir string) Mount {
	parts := strings.Split(spec, ":")

	src := parts[0]
	dst := src
	opts := ""
	if len(parts) > 1 && parts[1] != "" {
		dst = parts[1]
	}
	if len(parts) > 2 {
		opts = parts[2]
	}

	src = expandSource(src, projectDir)

	return Mount{
		Source:   src,
		Target:   dst,
		Kind:     MountBind,
		ReadOnly: strings.Contains(opts, "ro"),
	}
}

func expandSource(src, projectDir string) string {
	if src == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return src
	}
	if strings.HasPrefix(src, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, src[2:])
		}
		return src
	}
	if !filepath.IsAbs(src) {
		return filepath.Join(projectDir, src)
	}
	return src
}
