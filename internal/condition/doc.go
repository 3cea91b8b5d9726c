// Package condition decides whether a flow applies to a request.
//
// A flow's evaluator is a Composite of a path evaluator, a method
// evaluator when the flow restricts methods, and an expression
// evaluator when the flow carries a condition, in that order. The
// composite stops at the first evaluator returning false. Evaluation
// errors are returned to the caller and never read as false.
package condition
