// Package flow defines the declarative routing model evaluated by the
// gateway for every request: flows, their path operators, and the
// ordered policy references executed on the request and response phases.
//
// Flow values are built once per deployment and shared read-only by all
// concurrent requests of an API. Nothing in this package mutates a Flow
// after Validate has accepted it.
package flow
