package cache

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	RepoStatsTTL    = 2 * time.Minute
	ContributorsTTL = 10 * time.Minute
	DefaultTTL      = 5 * time.Minute
	RateLimitTTL    = 10 * time.Second
)

// Rule assigns a TTL to URLs whose path matches Pattern. Exclude entries are whole
// path segments ("/commits") that veto the rule when they follow the matched part.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Exclude []string
	TTL     time.Duration
}

// Match checks the rule against a URL path
func (r Rule) Match(path string) bool {
	if r.Pattern == nil {
		return false
	}
	loc := r.Pattern.FindStringIndex(path)
	if loc == nil {
		return false
	}
	rest := segments(path[loc[1]:])
	for _, ex := range r.Exclude {
		if containsSegments(rest, segments(ex)) {
			return false
		}
	}
	return true
}

func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// containsSegments reports whether sub occurs as a contiguous run in segs.
func containsSegments(segs, sub []string) bool {
	if len(sub) == 0 {
		return false
	}
	for i := 0; i+len(sub) <= len(segs); i++ {
		match := true
		for j := range sub {
			if segs[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// NewRule compiles pattern into a Rule.
func NewRule(name, pattern string, ttl time.Duration, exclude ...string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compiling pattern for rule %q: %w", name, err)
	}
	return Rule{Name: name, Pattern: re, Exclude: exclude, TTL: ttl}, nil
}

// Policy picks the TTL for a URL. The first matching rule wins; Default applies
// when nothing matches.
type Policy struct {
	Rules   []Rule
	Default time.Duration
}

// DefaultPolicy caches single-repository resources for 2 minutes, contributor
// listings for 10 minutes, the rate limit for 10 seconds and everything else for
// 5 minutes. Patterns anchor on a segment boundary so API roots under a prefix
// (GitHub Enterprise's /api/v3) match too.
func DefaultPolicy() *Policy {
	return &Policy{
		Rules: []Rule{
			{
				Name:    "repo-stats",
				Pattern: regexp.MustCompile(`(^|/)repos/[^/]+/[^/]+/?$`),
				Exclude: []string{"/commits", "/contents"},
				TTL:     RepoStatsTTL,
			},
			{
				Name:    "contributors",
				Pattern: regexp.MustCompile(`/contributors`),
				TTL:     ContributorsTTL,
			},
			{
				Name:    "rate-limit",
				Pattern: regexp.MustCompile(`(^|/)rate_limit/?$`),
				TTL:     RateLimitTTL,
			},
		},
		Default: DefaultTTL,
	}
}

// TTLFor returns the TTL for rawURL. URLs that fail to parse are matched as-is.
func (p *Policy) TTLFor(rawURL string) time.Duration {
	ttl, _ := p.classify(rawURL)
	return ttl
}

// RuleFor returns the name of the rule that would apply, or "default".
func (p *Policy) RuleFor(rawURL string) string {
	_, name := p.classify(rawURL)
	return name
}

func (p *Policy) classify(rawURL string) (time.Duration, string) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	for _, rule := range p.Rules {
		if rule.Match(path) {
			return rule.TTL, rule.Name
		}
	}
	return p.Default, "default"
}
