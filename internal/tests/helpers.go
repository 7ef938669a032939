package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/repolens/repolens/internal/cache"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/proxy"
)

// upstreamAPI is a fake GitHub API counting requests per path
type upstreamAPI struct {
	*httptest.Server
	calls atomic.Int32
}

// fixture_upstream creates a test upstream server answering JSON for known paths,
// 500 under /broken and plain text under /text
func fixture_upstream() *upstreamAPI {
	api := &upstreamAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		api.calls.Add(1)
		switch requ.URL.Path {
		case "/broken":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message": "Server Error"}`))
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("not json"))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"message": "Hello from upstream", "path": "` + requ.URL.Path + `", "accept": "` + requ.Header.Get("Accept") + `"}`))
		}
	}))
	return api
}

// fixture_config creates a test config caching GETs to baseURI, with optional rules
func fixture_config(baseURI string, rules *config.RulesConfig) *config.Config {
	cfg := &config.Config{
		Server:   config.ServerConfig{Port: 0}, // Will be set by test server
		Upstream: config.UpstreamConfig{BaseURL: baseURI, Timeout: "10s"},
		Cache: config.CacheConfig{
			CleanupInterval: "1m",
			DefaultTTL:      "5m",
			KeyHeaders:      []string{"Accept", "Authorization"},
		},
		Rules: config.RulesConfig{
			Mode:  "whitelist",
			Rules: []config.CacheRule{{BaseURI: baseURI, Methods: []string{"GET"}}},
		},
	}

	if rules != nil {
		cfg.Rules = *rules
	}

	return cfg
}

// fixture_proxy creates a proxy server over c (nil for a fresh cache) and returns
// the server, its test server, and an HTTP client routed through it
func fixture_proxy(cfg *config.Config, c *cache.ResponseCache) (*proxy.Server, *httptest.Server, *http.Client, error) {
	var (
		proxyServer *proxy.Server
		err         error
	)
	if c == nil {
		proxyServer, err = proxy.New(cfg)
	} else {
		proxyServer, err = proxy.NewWithCache(cfg, c)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return proxyServer, proxyTestServer, client, nil
}

// manualClock is a settable clock for expiry tests
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
