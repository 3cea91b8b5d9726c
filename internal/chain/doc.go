// Package chain executes the policy lists of a flow for one request.
//
// A Chain walks its policies with an iterative driver: each policy
// receives a step handle and continues the traversal with DoNext or
// aborts it with FailWith, synchronously or later from another
// goroutine. Returned errors and recovered panics end the traversal with
// an execution error result. The result handler passed to Execute runs
// exactly once.
//
// Content phases do not traverse the chain. Stream composes the body
// transforms of the streaming policies into a stream.Pipeline instead.
//
// Direct and NoOp are terminal chains that run no policies.
package chain
