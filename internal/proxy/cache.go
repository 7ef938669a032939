package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/repolens/repolens/internal/cache"
)

// pendingLookup carries a missed request's key material to the response handler
type pendingLookup struct {
	url     string
	headers cache.Headers
}

// shouldBeCached determines if a request goes through the cache based on rules
func (s *Server) shouldBeCached(requ *http.Request) bool {
	if requ.Method != http.MethodGet {
		return false
	}

	matched := false
	for _, rule := range s.rules {
		if rule.Match(requ) {
			matched = true
			break
		}
	}

	if s.config.Rules.Mode == "whitelist" {
		return matched
	} else {
		return !matched
	}
}

// handleRequest answers from the cache when possible
func (s *Server) handleRequest(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	if !s.shouldBeCached(requ) {
		logrus.Debugf("Bypassing cache for %s %s", requ.Method, requ.URL)
		return requ, nil
	}

	targetURL := getTargetURL(requ)
	headers := cache.FromHTTP(requ.Header, s.keyHeaders...)

	if resp := s.getCachedResponse(requ, targetURL, headers); resp != nil {
		return requ, resp
	}

	ctx.UserData = &pendingLookup{url: targetURL, headers: headers}
	return requ, nil
}

// getCachedResponse returns a synthesized HTTP response if the payload is cached
func (s *Server) getCachedResponse(requ *http.Request, targetURL string, headers cache.Headers) *http.Response {
	payload, ok := s.cache.Get(targetURL, headers)
	if !ok {
		logrus.Debugf("No cached data found for %s", targetURL)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("Failed to encode cached payload for %s: %v", targetURL, err)
		return nil
	}

	resp := goproxy.NewResponse(requ, "application/json; charset=utf-8", http.StatusOK, string(body))
	resp.Header.Set("X-Cache", "HIT")
	logrus.Infof("Serving from cache: %s", targetURL)
	return resp
}

// handleResponse stores successful JSON answers for requests that missed
func (s *Server) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	pending, ok := ctx.UserData.(*pendingLookup)
	if !ok || resp == nil {
		return resp
	}
	resp.Header.Set("X-Cache", "MISS")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logrus.Debugf("Not caching %s: upstream answered %d", pending.url, resp.StatusCode)
		return resp
	}
	if resp.Header.Get("Content-Encoding") != "" {
		logrus.Debugf("Not caching %s: encoded body (%s)", pending.url, resp.Header.Get("Content-Encoding"))
		return resp
	}

	s.cacheResponse(pending, resp)
	return resp
}

// cacheResponse decodes the body and stores it, leaving resp readable for the client
func (s *Server) cacheResponse(pending *pendingLookup, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		logrus.Errorf("Failed to read response body for %s: %v", pending.url, err)
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		logrus.Debugf("Not caching %s: body is not JSON: %v", pending.url, err)
		return
	}

	s.cache.Set(pending.url, pending.headers, payload)
}
