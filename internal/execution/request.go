package execution

import (
	"net/http"
	"net/url"
	"strings"
)

// Request is the request view exposed to policies. Policies may modify
// Headers and Path before the request is forwarded upstream.
type Request struct {
	Method     string
	Path       string
	Host       string
	Headers    http.Header
	Query      url.Values
	PathParams map[string]string
	RemoteAddr string
}

// NewRequest builds a request view from an inbound HTTP request. path is
// the request path relative to the API context path.
func NewRequest(r *http.Request, path string) *Request {
	if path == "" {
		path = "/"
	}
	return &Request{
		Method:     r.Method,
		Path:       path,
		Host:       r.Host,
		Headers:    r.Header.Clone(),
		Query:      r.URL.Query(),
		PathParams: map[string]string{},
		RemoteAddr: r.RemoteAddr,
	}
}

// Response is the response view exposed to policies.
type Response struct {
	Status  int
	Headers http.Header
}

// NewResponse creates an empty 200 response view.
func NewResponse() *Response {
	return &Response{Status: http.StatusOK, Headers: make(http.Header)}
}

// flattenHeaders lower-cases header names and keeps the first value.
func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[0]
	}
	return out
}

func flattenQuery(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for name, values := range q {
		if len(values) == 0 {
			continue
		}
		out[name] = values[0]
	}
	return out
}

func (r *Request) toMap() map[string]any {
	params := make(map[string]any, len(r.PathParams))
	for k, v := range r.PathParams {
		params[k] = v
	}
	return map[string]any{
		"method":     r.Method,
		"path":       r.Path,
		"host":       r.Host,
		"headers":    flattenHeaders(r.Headers),
		"query":      flattenQuery(r.Query),
		"pathParams": params,
		"remoteAddr": r.RemoteAddr,
	}
}

func (r *Response) toMap() map[string]any {
	return map[string]any{
		"status":  int64(r.Status),
		"headers": flattenHeaders(r.Headers),
	}
}
