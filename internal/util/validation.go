package util

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// headerNameRegex validates HTTP header names according to RFC 7230.
var headerNameRegex = regexp.MustCompile(`^[!#$%&'*+\-.^_` + "`" + `|~0-9A-Za-z]+$`)

// validMethods lists the HTTP methods a flow may be restricted to.
var validMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"PATCH":   true,
	"HEAD":    true,
	"OPTIONS": true,
	"TRACE":   true,
	"CONNECT": true,
	"*":       true,
}

// ValidateURL validates an upstream URL string.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

// ValidateHeaderName validates an HTTP header name.
func ValidateHeaderName(name string) error {
	if name == "" {
		return fmt.Errorf("header name cannot be empty")
	}

	if !headerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid header name: %s", name)
	}

	return nil
}

// ValidateHTTPMethod validates an HTTP method. The wildcard "*" is accepted.
func ValidateHTTPMethod(method string) error {
	if !validMethods[strings.ToUpper(method)] {
		return fmt.Errorf("invalid HTTP method: %s", method)
	}
	return nil
}

// ValidateHTTPStatusCode validates an HTTP status code.
func ValidateHTTPStatusCode(code int) error {
	if code < 100 || code > 599 {
		return fmt.Errorf("HTTP status code must be between 100 and 599, got: %d", code)
	}
	return nil
}

// ValidateContextPath validates an API context path.
func ValidateContextPath(path string) error {
	if path == "" {
		return fmt.Errorf("context path cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("context path must start with '/': %s", path)
	}
	return nil
}
