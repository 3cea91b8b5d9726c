package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// HeaderRequestID carries the request id between clients, the gateway
// and upstreams.
const HeaderRequestID = "X-Request-ID"

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, name := range h.Values("Connection") {
		for _, field := range strings.Split(name, ",") {
			if field = strings.TrimSpace(field); field != "" {
				h.Del(field)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// upstreamRequest builds the request sent to the upstream of dep from
// the request view as left by the request chain.
func upstreamRequest(
	ctx context.Context,
	in *http.Request,
	dep *Deployment,
	view *execution.Request,
	body io.ReadCloser,
	transformed bool,
) (*http.Request, error) {
	target := *dep.Upstream
	target.Path = joinPath(dep.Upstream.Path, view.Path)
	target.RawPath = ""
	target.RawQuery = encodeQuery(view.Query)

	out, err := http.NewRequestWithContext(ctx, view.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	out.Header = view.Headers.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopHeaders(out.Header)

	if transformed {
		out.ContentLength = -1
		out.Header.Del("Content-Length")
	} else {
		out.ContentLength = in.ContentLength
	}

	// Set X-Forwarded headers
	if clientIP, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		if prior := in.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		out.Header.Set("X-Forwarded-For", clientIP)
	}
	if in.TLS != nil {
		out.Header.Set("X-Forwarded-Proto", "https")
	} else {
		out.Header.Set("X-Forwarded-Proto", "http")
	}
	out.Header.Set("X-Forwarded-Host", in.Host)

	if id := observability.RequestIDFromContext(ctx); id != "" {
		out.Header.Set(HeaderRequestID, id)
	}
	observability.InjectTraceContext(ctx, out)

	out.Host = target.Host

	return out, nil
}

func joinPath(base, rel string) string {
	switch {
	case base == "" || base == "/":
		return rel
	case strings.HasSuffix(base, "/") && strings.HasPrefix(rel, "/"):
		return base + rel[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(rel, "/"):
		return base + "/" + rel
	default:
		return base + rel
	}
}

func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return q.Encode()
}

// upstreamErrorType classifies a failed round trip for metrics.
func upstreamErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "connection"
	}
}

// countingReader counts the bytes read from a request body and keeps
// the first read error other than io.EOF.
type countingReader struct {
	rc  io.ReadCloser
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && c.err == nil {
		c.err = err
	}
	return n, err
}

func (c *countingReader) Close() error {
	return c.rc.Close()
}
