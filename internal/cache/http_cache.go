package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrDecode is returned when a successful upstream response is not valid JSON.
var ErrDecode = errors.New("decoding response body")

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is what Fetch hands back, whether it came from the cache or upstream.
type Response struct {
	Status    int
	OK        bool
	Payload   any
	FromCache bool
	// Body holds the raw upstream body of a non-2xx response.
	Body []byte
}

// Decode converts the payload into dst by a JSON round trip.
func (r *Response) Decode(dst any) error {
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("re-encoding payload: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// Client puts a GenericCache in front of real GET requests.
type Client struct {
	cache GenericCache
	http  Doer
}

func NewClient(cache GenericCache, doer Doer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		cache: cache,
		http:  doer,
	}
}

// Fetch returns the cached payload for url and headers, or performs the GET and
// caches the decoded body when upstream answers 2xx. Transport errors and decode
// errors are returned and nothing is stored; non-2xx answers come back with OK false.
// A 2xx with an empty body (204 No Content) comes back OK with a nil Payload and is
// not stored.
func (c *Client) Fetch(ctx context.Context, url string, headers Headers) (*Response, error) {
	if payload, ok := c.cache.Get(url, headers); ok {
		return &Response{Status: http.StatusOK, OK: true, Payload: payload, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logrus.Debugf("Not caching %s: upstream answered %d", url, resp.StatusCode)
		return &Response{Status: resp.StatusCode, OK: false, Body: body}, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		logrus.Debugf("Not caching %s: upstream answered %d with no content", url, resp.StatusCode)
		return &Response{Status: resp.StatusCode, OK: true}, nil
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrDecode, url, err)
	}

	c.cache.Set(url, headers, payload)
	return &Response{Status: resp.StatusCode, OK: true, Payload: payload}, nil
}
