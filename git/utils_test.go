package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepoName(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "SSH URL with .git",
			url:      "git@github.com:team/rules.git",
			expected: "rules",
		},
		{
			name:     "HTTPS URL with .git",
			url:      "https://github.com/team/rules.git",
			expected: "rules",
		},
		{
			name:     "HTTPS URL with trailing slash",
			url:      "https://github.com/team/rules/",
			expected: "rules",
		},
		{
			name:     "GitLab nested groups",
			url:      "https://gitlab.com/group/subgroup/rules.git",
			expected: "rules",
		},
		{
			name:     "local path",
			url:      "/srv/git/rules.git",
			expected: "rules",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RepoName(tc.url))
		})
	}
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\n\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a", 5))
}
