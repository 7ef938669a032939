package proxy

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// getTargetURL returns the absolute upstream URL, without default ports so that
// MITM'd requests ("api.github.com:443") key the same as direct ones.
func getTargetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		u := *r.URL
		u.Host = stripDefaultPort(u.Scheme, u.Host)
		return u.String()
	}

	// Reconstruct URL from Host header
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s%s", scheme, stripDefaultPort(scheme, r.Host), r.URL.String())
}

func stripDefaultPort(scheme, host string) string {
	switch {
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	}
	return host
}

// dumbResponseWriter hands a raw connection to goproxy's CONNECT handling
type dumbResponseWriter struct {
	net.Conn
}

func (dumb dumbResponseWriter) Header() http.Header {
	panic("Header() should not be called on this ResponseWriter")
}

func (dumb dumbResponseWriter) Write(buf []byte) (int, error) {
	if string(buf) == "HTTP/1.0 200 OK\r\n\r\n" {
		return len(buf), nil // throw away the HTTP OK response from the faux CONNECT request
	}
	return dumb.Conn.Write(buf)
}

func (dumb dumbResponseWriter) WriteHeader(code int) {
	panic("WriteHeader() should not be called on this ResponseWriter")
}

func (dumb dumbResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return dumb, bufio.NewReadWriter(bufio.NewReader(dumb), bufio.NewWriter(dumb)), nil
}
