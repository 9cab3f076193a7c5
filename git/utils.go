package git

import "strings"

// RepoName extracts the repository name from a remote URL
func RepoName(url string) string {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	url = strings.TrimSuffix(url, ".git")

	// Handle SSH URLs (git@github.com:user/repo)
	if strings.HasPrefix(url, "git@") {
		if i := strings.Index(url, ":"); i >= 0 {
			url = url[i+1:]
		}
	}

	// Get the last part of the path
	parts := strings.Split(url, "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return "unknown"
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func lastLines(s string, n int) string {
	lines := splitLines(s)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
