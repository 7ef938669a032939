package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Headers maps a request header name to its value.
type Headers map[string]string

// FromHTTP flattens an http.Header, keeping only the named headers when names is
// non-empty. Multi-valued headers keep their first value.
func FromHTTP(h http.Header, names ...string) Headers {
	out := make(Headers)
	if len(names) == 0 {
		for k, v := range h {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out
	}
	for _, name := range names {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// canonical returns a copy with canonical header names, so "accept" and "Accept"
// key the same request. Names that fold together keep all their values, sorted and
// comma-joined.
func (h Headers) canonical() map[string]string {
	folded := make(map[string][]string, len(h))
	for k, v := range h {
		name := http.CanonicalHeaderKey(k)
		folded[name] = append(folded[name], v)
	}
	out := make(map[string]string, len(folded))
	for name, values := range folded {
		sort.Strings(values)
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// Key derives the store key for a request: hex sha256 of url + ":" + headers as JSON.
// encoding/json writes map keys sorted, so insertion order never changes the key.
func Key(url string, headers Headers) string {
	serialized, err := json.Marshal(headers.canonical())
	if err != nil {
		// map[string]string always marshals
		serialized = []byte("{}")
	}
	sum := sha256.Sum256([]byte(url + ":" + string(serialized)))
	return hex.EncodeToString(sum[:])
}
