// Package policy defines how policy plugins are described, registered
// and bound to flows.
//
// A plugin implements one or more phase capabilities (RequestHandler,
// ResponseHandler, RequestContentHandler, ResponseContentHandler). When
// a plugin is registered, its Manifest records which phases it supports
// and how each phase is dispatched. The Factory then turns every
// flow.PolicyRef into an ExecutablePolicy bound to a configured plugin
// instance, wrapped in a conditional policy when the reference carries
// an execution condition.
//
// Three dispatch strategies produce identical behavior and differ only
// in per-call cost:
//
//   - StrategyInterface calls the capability interface method directly.
//   - StrategyCached resolves the phase method once by reflection into a
//     typed function value, called directly afterwards.
//   - StrategyReflective looks the method up and calls it by reflection
//     on every invocation.
package policy
