// Package util provides utility functions and types shared by the
// flow engine packages.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ConfigError, NoMatchingFlowError). Each
//     type implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// # Validation
//
// Input validation helpers for URLs, header names and HTTP methods:
//
//	err := util.ValidateURL("https://example.com")
//	err := util.ValidateHeaderName("X-Custom-Header")
//	err := util.ValidateHTTPMethod("PATCH")
package util
