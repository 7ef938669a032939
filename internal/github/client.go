// Package github reads repository data from the GitHub REST API through the
// response cache.
package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/repolens/repolens/internal/cache"
)

const (
	DefaultBaseURL = "https://api.github.com"
	APIVersion     = "2022-11-28"
	userAgent      = "repolens"
	perPage        = 100
)

// Client issues GitHub API GETs through a caching fetcher.
type Client struct {
	fetcher *cache.Client
	baseURL string
	headers cache.Headers
}

// New creates a client. An empty baseURL means api.github.com; an empty token sends
// unauthenticated requests.
func New(fetcher *cache.Client, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	headers := cache.Headers{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": APIVersion,
		"User-Agent":           userAgent,
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: headers,
	}
}

// URL builds the absolute URL for an API path.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get fetches an API path and decodes it into dst. A 2xx answer without a body, as
// GitHub sends for the contributors of an empty repository, leaves dst untouched.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dst any) error {
	target := c.URL(path, query)

	resp, err := c.fetcher.Fetch(ctx, target, c.headers)
	if err != nil {
		return err
	}
	if !resp.OK {
		return newAPIError(target, resp.Status, resp.Body)
	}
	if resp.FromCache {
		logrus.Debugf("Served %s from cache", target)
	}
	if resp.Payload == nil {
		return nil
	}
	return resp.Decode(dst)
}

func repoPath(owner, repo string, parts ...string) string {
	p := "repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func pageQuery(extra ...string) url.Values {
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

// Repository fetches the repository resource.
func (c *Client) Repository(ctx context.Context, owner, repo string) (*Repository, error) {
	var out Repository
	if err := c.Get(ctx, repoPath(owner, repo), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, repo, err)
	}
	return &out, nil
}

// Contributors fetches the first page of contributors, most active first. An empty
// repository has none.
func (c *Client) Contributors(ctx context.Context, owner, repo string) ([]Contributor, error) {
	out := []Contributor{}
	if err := c.Get(ctx, repoPath(owner, repo, "contributors"), pageQuery(), &out); err != nil {
		return nil, fmt.Errorf("fetching contributors of %s/%s: %w", owner, repo, err)
	}
	return out, nil
}

// Pulls fetches the first page of pull requests in the given state
// ("open", "closed" or "all").
func (c *Client) Pulls(ctx context.Context, owner, repo, state string) ([]PullRequest, error) {
	if state == "" {
		state = "open"
	}
	var out []PullRequest
	if err := c.Get(ctx, repoPath(owner, repo, "pulls"), pageQuery("state", state), &out); err != nil {
		return nil, fmt.Errorf("fetching pull requests of %s/%s: %w", owner, repo, err)
	}
	return out, nil
}

// Commits fetches the first page of commits on the default branch.
func (c *Client) Commits(ctx context.Context, owner, repo string) ([]Commit, error) {
	var out []Commit
	if err := c.Get(ctx, repoPath(owner, repo, "commits"), pageQuery(), &out); err != nil {
		return nil, fmt.Errorf("fetching commits of %s/%s: %w", owner, repo, err)
	}
	return out, nil
}

// Contents lists a directory of the repository. An empty path lists the root.
func (c *Client) Contents(ctx context.Context, owner, repo, path string) ([]ContentEntry, error) {
	p := repoPath(owner, repo, "contents")
	if path = strings.Trim(path, "/"); path != "" {
		p += "/" + path
	}
	var out []ContentEntry
	if err := c.Get(ctx, p, nil, &out); err != nil {
		return nil, fmt.Errorf("listing contents of %s/%s/%s: %w", owner, repo, path, err)
	}
	return out, nil
}

// Languages fetches the byte count per language.
func (c *Client) Languages(ctx context.Context, owner, repo string) (Languages, error) {
	out := Languages{}
	if err := c.Get(ctx, repoPath(owner, repo, "languages"), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching languages of %s/%s: %w", owner, repo, err)
	}
	return out, nil
}

// RateLimit reports the core API quota. It is cached only briefly (see
// cache.RateLimitTTL).
func (c *Client) RateLimit(ctx context.Context) (*RateLimit, error) {
	var out rateLimitResponse
	if err := c.Get(ctx, "rate_limit", nil, &out); err != nil {
		return nil, fmt.Errorf("fetching rate limit: %w", err)
	}
	return &out.Resources.Core, nil
}

// Snapshot fetches the repository, its contributors, open pull requests and
// languages concurrently. The first failure cancels the remaining requests.
func (c *Client) Snapshot(ctx context.Context, owner, repo string) (*Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := c.Repository(ctx, owner, repo)
		snap.Repository = r
		return err
	})
	g.Go(func() error {
		contributors, err := c.Contributors(ctx, owner, repo)
		snap.Contributors = contributors
		return err
	})
	g.Go(func() error {
		pulls, err := c.Pulls(ctx, owner, repo, "open")
		snap.PullRequests = pulls
		return err
	})
	g.Go(func() error {
		langs, err := c.Languages(ctx, owner, repo)
		snap.Languages = langs
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ParseRepo splits "owner/repo".
func ParseRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.Trim(s, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/repo", s)
	}
	return owner, repo, nil
}
