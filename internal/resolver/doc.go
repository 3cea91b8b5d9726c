// Package resolver determines which flows of an API apply to a request.
//
// Resolve returns every enabled flow whose condition holds, in
// declaration order. Match applies the flow mode on top: in DEFAULT mode
// all resolved flows apply, in BEST_MATCH mode only the most specific
// one. Match also stores the path parameters of the applied flows in the
// request.
package resolver
