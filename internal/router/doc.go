// Package router implements path matching and best-match flow
// selection.
//
// Patterns are tokenized into literal and parameter segments. A
// parameter segment is written ":name" or "{name}" and matches exactly
// one non-empty request path segment.
//
//	p, err := router.ParsePattern("/pets/:id")
//	ok := p.Match(flow.OperatorEquals, router.SplitPath("/pets/42"))
//
// BestMatchSelector picks the most specific of several matching flows:
// longer patterns win, then literal segments beat parameters at the
// first position where the candidates differ, then declaration order.
package router
