package tests

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/internal/cache"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/github"
)

func get(t *testing.T, client *http.Client, target string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestProxyIntegration(t *testing.T) {
	// Create a test upstream server
	upstream := fixture_upstream()
	defer upstream.Close()

	cfg := fixture_config(upstream.URL, nil)

	proxyServer, proxyTestServer, client, err := fixture_proxy(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create proxy server: %v", err)
	}
	defer proxyTestServer.Close()

	// Test first request (should hit upstream and cache)
	t.Run("first request - cache miss", func(t *testing.T) {
		resp, body := get(t, client, upstream.URL+"/repos/o/r", nil)

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") != "MISS" {
			t.Errorf("Expected X-Cache: MISS, got %s", resp.Header.Get("X-Cache"))
		}
		if !strings.Contains(body, "Hello from upstream") {
			t.Errorf("Unexpected response body: %s", body)
		}
	})

	// Test second request (should hit cache)
	t.Run("second request - cache hit", func(t *testing.T) {
		resp, body := get(t, client, upstream.URL+"/repos/o/r", nil)

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") != "HIT" {
			t.Errorf("Expected X-Cache: HIT, got %s", resp.Header.Get("X-Cache"))
		}
		assert.JSONEq(t, `{"message": "Hello from upstream", "path": "/repos/o/r", "accept": ""}`, body)
	})

	t.Run("upstream called once", func(t *testing.T) {
		assert.Equal(t, int32(1), upstream.calls.Load())
		assert.Equal(t, 1, proxyServer.Cache().Len())
	})
}

func TestProxyKeyHeaders(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	_, proxyTestServer, client, err := fixture_proxy(fixture_config(upstream.URL, nil), nil)
	require.NoError(t, err)
	defer proxyTestServer.Close()

	jsonAccept := http.Header{"Accept": {"application/json"}}
	githubAccept := http.Header{"Accept": {"application/vnd.github+json"}}

	resp, _ := get(t, client, upstream.URL+"/repos/o/r/pulls", jsonAccept)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	resp, body := get(t, client, upstream.URL+"/repos/o/r/pulls", githubAccept)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"), "a different Accept value is a different entry")
	assert.Contains(t, body, "application/vnd.github+json")

	resp, body = get(t, client, upstream.URL+"/repos/o/r/pulls", jsonAccept)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Contains(t, body, `"application/json"`)

	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestProxyDoesNotCacheFailures(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	proxyServer, proxyTestServer, client, err := fixture_proxy(fixture_config(upstream.URL, nil), nil)
	require.NoError(t, err)
	defer proxyTestServer.Close()

	for i := 0; i < 2; i++ {
		resp, body := get(t, client, upstream.URL+"/broken", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
		assert.Contains(t, body, "Server Error")
	}

	for i := 0; i < 2; i++ {
		resp, body := get(t, client, upstream.URL+"/text", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
		assert.Equal(t, "not json", body)
	}

	assert.Equal(t, int32(4), upstream.calls.Load())
	assert.Equal(t, 0, proxyServer.Cache().Len())
}

func TestProxyIntegrationWithCustomRules(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	// Create custom rules (blacklist mode)
	customRules := &config.RulesConfig{
		Mode: "blacklist",
		Rules: []config.CacheRule{
			{
				BaseURI: "https://example.com",
				Methods: []string{"GET"},
			},
		},
	}

	_, proxyTestServer, client, err := fixture_proxy(fixture_config(upstream.URL, customRules), nil)
	if err != nil {
		t.Fatalf("Failed to create proxy server: %v", err)
	}
	defer proxyTestServer.Close()

	// The upstream URL is not in the blacklist, so requests are cached
	resp, _ := get(t, client, upstream.URL+"/test", nil)
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Errorf("Expected X-Cache: MISS, got %s", resp.Header.Get("X-Cache"))
	}

	resp, _ = get(t, client, upstream.URL+"/test", nil)
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Errorf("Expected X-Cache: HIT, got %s", resp.Header.Get("X-Cache"))
	}
}

func TestProxyBypassedRequests(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	rules := &config.RulesConfig{Mode: "whitelist", Rules: []config.CacheRule{{BaseURI: "https://example.com", Methods: []string{"GET"}}}}
	proxyServer, proxyTestServer, client, err := fixture_proxy(fixture_config(upstream.URL, rules), nil)
	require.NoError(t, err)
	defer proxyTestServer.Close()

	for i := 0; i < 2; i++ {
		resp, _ := get(t, client, upstream.URL+"/test", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-Cache"))
	}
	assert.Equal(t, int32(2), upstream.calls.Load())
	assert.Equal(t, 0, proxyServer.Cache().Len())
}

func TestProxyEntryExpires(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := cache.New(cache.WithClock(clock.Now))

	_, proxyTestServer, client, err := fixture_proxy(fixture_config(upstream.URL, nil), c)
	require.NoError(t, err)
	defer proxyTestServer.Close()

	repoURL := upstream.URL + "/repos/octocat/Hello-World"

	resp, _ := get(t, client, repoURL, nil)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	clock.Advance(119 * time.Second)
	resp, _ = get(t, client, repoURL, nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	clock.Advance(2 * time.Second)
	resp, _ = get(t, client, repoURL, nil)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"), "repository stats expire after two minutes")

	assert.Equal(t, int32(2), upstream.calls.Load())
}

func TestProxySharesCacheWithClient(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	c := cache.New()
	cfg := fixture_config(upstream.URL, nil)
	cfg.Cache.KeyHeaders = []string{"Accept", "Authorization", "User-Agent", "X-GitHub-Api-Version"}

	_, proxyTestServer, client, err := fixture_proxy(cfg, c)
	require.NoError(t, err)
	defer proxyTestServer.Close()

	gh := github.New(cache.NewClient(c, upstream.Client()), upstream.URL, "")
	var out map[string]any
	require.NoError(t, gh.Get(context.Background(), "/repos/o/r", nil, &out))

	header := http.Header{
		"Accept":               {"application/vnd.github+json"},
		"User-Agent":           {"repolens"},
		"X-Github-Api-Version": {github.APIVersion},
	}
	resp, _ := get(t, client, upstream.URL+"/repos/o/r", header)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, int32(1), upstream.calls.Load())
}
