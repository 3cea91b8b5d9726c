// Package execution provides the per-request execution context shared
// by flow resolution and policy chains.
//
// A Context is created for one request, mutated by the policies of
// that request, and discarded when the request completes. It is never
// shared across requests. The interrupted flag is the only field that
// may be written from another goroutine, typically by the transport
// when a deadline elapses.
package execution
