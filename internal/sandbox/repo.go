package sandbox

import (
	"fmt"
	"strings"
)

// ExtractRepoName derives the repository name from a git URL. Both HTTPS
// and SSH forms are handled:
//
//	https://github.com/user/repo.git -> repo
//	git@github.com:user/repo.git     -> repo
//	https://github.com/user/repo/    -> repo
func ExtractRepoName(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("empty repository URL")
	}
	url = strings.TrimRight(url, "/")

	for _, sep := range []string{"?", "#"} {
		if i := strings.Index(url, sep); i >= 0 {
			url = url[:i]
		}
	}
	url = strings.TrimSuffix(url, ".git")

	name := url
	if i := strings.LastIndex(url, "/"); i >= 0 {
		name = url[i+1:]
	} else if i := strings.LastIndex(url, ":"); i >= 0 {
		name = url[i+1:]
	}

	if name == "" {
		return "", fmt.Errorf("could not extract repository name from URL: %s", url)
	}
	return name, nil
}
