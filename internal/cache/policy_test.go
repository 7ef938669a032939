package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		url      string
		wantTTL  time.Duration
		wantRule string
	}{
		{"https://api.example.com/repos/octocat/Hello-World", RepoStatsTTL, "repo-stats"},
		{"https://api.example.com/repos/octocat/Hello-World/", RepoStatsTTL, "repo-stats"},
		{"https://api.example.com/repos/octocat/Hello-World?per_page=1", RepoStatsTTL, "repo-stats"},
		{"https://api.example.com/repos/octocat/Hello-World/contributors", ContributorsTTL, "contributors"},
		{"https://api.example.com/repos/octocat/Hello-World/contributors?per_page=100", ContributorsTTL, "contributors"},
		{"https://api.example.com/repos/octocat/Hello-World/pulls", DefaultTTL, "default"},
		{"https://api.example.com/repos/octocat/Hello-World/commits", DefaultTTL, "default"},
		{"https://api.example.com/repos/octocat/Hello-World/contents/README.md", DefaultTTL, "default"},
		{"https://api.example.com/users/octocat", DefaultTTL, "default"},
		{"https://api.example.com/rate_limit", RateLimitTTL, "rate-limit"},
		{"https://api.example.com/repos/o/contents-api", RepoStatsTTL, "repo-stats"},
		{"https://api.example.com/repos/commitsar/r", RepoStatsTTL, "repo-stats"},
		{"https://api.example.com/repos/o/commits", RepoStatsTTL, "repo-stats"},
		{"https://ghe.example.com/api/v3/repos/o/r", RepoStatsTTL, "repo-stats"},
		{"https://ghe.example.com/api/v3/repos/o/r/contributors", ContributorsTTL, "contributors"},
		{"https://ghe.example.com/api/v3/repos/o/r/pulls", DefaultTTL, "default"},
		{"https://ghe.example.com/api/v3/rate_limit", RateLimitTTL, "rate-limit"},
		{"https://api.example.com/myrepos/o/r", DefaultTTL, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.wantTTL, p.TTLFor(tt.url))
			assert.Equal(t, tt.wantRule, p.RuleFor(tt.url))
		})
	}
}

func TestRuleExclude(t *testing.T) {
	rule, err := NewRule("repos", `^/repos/`, time.Minute, "/commits", "/contents")
	require.NoError(t, err)

	assert.True(t, rule.Match("/repos/o/r/pulls"))
	assert.False(t, rule.Match("/repos/o/r/commits"))
	assert.False(t, rule.Match("/repos/o/r/contents/a.go"))
	assert.False(t, rule.Match("/users/o"))
}

func TestRuleExcludeMatchesWholeSegments(t *testing.T) {
	rule, err := NewRule("repos", `^/repos/`, time.Minute, "/commits", "/contents/docs")
	require.NoError(t, err)

	assert.True(t, rule.Match("/repos/commitsar/r"))
	assert.True(t, rule.Match("/repos/o/contents-api/pulls"))
	assert.True(t, rule.Match("/repos/o/r/contents/src"))
	assert.False(t, rule.Match("/repos/o/r/contents/docs/a.md"))
	assert.False(t, rule.Match("/repos/o/r/commits/"))
}

func TestPolicyFirstMatchWins(t *testing.T) {
	broad, err := NewRule("broad", `^/repos/`, time.Second, "/commits")
	require.NoError(t, err)
	narrow, err := NewRule("narrow", `/contributors`, time.Hour)
	require.NoError(t, err)
	p := &Policy{Rules: []Rule{broad, narrow}, Default: time.Minute}

	assert.Equal(t, time.Second, p.TTLFor("https://h/repos/o/r/contributors"))
	assert.Equal(t, time.Minute, p.TTLFor("https://h/repos/o/r/commits"))
}

func TestNewRuleInvalidPattern(t *testing.T) {
	_, err := NewRule("broken", `([`, time.Minute)
	assert.Error(t, err)
}
