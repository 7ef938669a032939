package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/repolens/repolens/internal/cache"
	"github.com/repolens/repolens/internal/config"
)

const shutdownTimeout = 10 * time.Second

// Server represents the caching proxy server
type Server struct {
	config          *config.Config
	proxy           *goproxy.ProxyHttpServer
	cache           *cache.ResponseCache
	rules           []Rule
	keyHeaders      []string
	cleanupInterval time.Duration
}

// New creates a proxy server with its own response cache
func New(cfg *config.Config) (*Server, error) {
	policy, err := cfg.CachePolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid cache policy: %w", err)
	}
	return NewWithCache(cfg, cache.New(cache.WithPolicy(policy)))
}

// NewWithCache creates a proxy server backed by an existing cache, so the proxy and
// in-process API clients share entries.
func NewWithCache(cfg *config.Config, c *cache.ResponseCache) (*Server, error) {
	cleanupInterval, err := cfg.GetCleanupInterval()
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup interval: %w", err)
	}
	timeout, err := cfg.GetUpstreamTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid upstream timeout: %w", err)
	}

	p := goproxy.NewProxyHttpServer()
	p.Logger = logrus.StandardLogger()
	p.Verbose = logrus.IsLevelEnabled(logrus.TraceLevel)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = timeout
	p.Tr = tr

	s := &Server{
		config:          cfg,
		proxy:           p,
		cache:           c,
		rules:           rulesFromConfig(cfg),
		keyHeaders:      cfg.Cache.KeyHeaders,
		cleanupInterval: cleanupInterval,
	}

	if cfg.Server.HTTPS.Enabled {
		if err := s.setupHTTPSProxyHandler(); err != nil {
			return nil, fmt.Errorf("failed to set up TLS interception: %w", err)
		}
	}

	p.OnRequest().DoFunc(s.handleRequest)
	p.OnResponse().DoFunc(s.handleResponse)

	return s, nil
}

// GetProxy returns the underlying goproxy handler (exported for testing)
func (s *Server) GetProxy() *goproxy.ProxyHttpServer {
	return s.proxy
}

// Cache returns the response cache behind the proxy
func (s *Server) Cache() *cache.ResponseCache {
	return s.cache
}

// Start serves the proxy until ctx is cancelled, sweeping the cache in the background
func (s *Server) Start(ctx context.Context) error {
	stopSweep := s.cache.Start(ctx, s.cleanupInterval)
	defer stopSweep()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.Port),
		Handler: s.proxy,
	}

	errs := make(chan error, 2)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	if addr := s.config.Server.HTTPS.TransparentAddr; addr != "" {
		go func() {
			errs <- s.serveTransparentHTTPS(ctx, addr)
		}()
	}

	logrus.Infof("Starting caching proxy on port %d", s.config.Server.Port)
	logrus.Infof("Upstream: %s", s.config.Upstream.BaseURL)
	logrus.Infof("Cache sweep interval: %s", s.cleanupInterval)
	logrus.Infof("Rules mode: %s", s.config.Rules.Mode)

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	stats := s.cache.Stats()
	logrus.Infof("Proxy stopped (cache hits %d, misses %d, entries %d)", stats.Hits, stats.Misses, s.cache.Len())
	return nil
}
