package router

import (
	"github.com/vyrodovalexey/flowgate/internal/flow"
)

// BestMatchSelector selects the single most specific flow among those
// whose path operator matches a request path.
type BestMatchSelector struct {
	cache *PatternCache
}

// NewBestMatchSelector creates a selector compiling patterns through cache.
// A nil cache gets a private one.
func NewBestMatchSelector(cache *PatternCache) *BestMatchSelector {
	if cache == nil {
		cache = NewPatternCache(0)
	}
	return &BestMatchSelector{cache: cache}
}

// Select returns the most specific candidate matching path, or false if
// no candidate matches. Candidates with malformed patterns never match.
//
// Ranking: more segments win; otherwise the first position where the
// candidates differ in segment kind decides in favour of the literal;
// remaining ties go to the earliest candidate.
func (s *BestMatchSelector) Select(candidates []*flow.Flow, path string) (*flow.Flow, bool) {
	segments := SplitPath(path)

	var (
		best        *flow.Flow
		bestPattern *Pattern
		matched     int
	)

	for _, f := range candidates {
		p, err := s.cache.Get(f.PathOperator.Pattern)
		if err != nil || !p.Match(f.PathOperator.Operator, segments) {
			continue
		}
		matched++
		if best == nil || compareSpecificity(p, bestPattern) > 0 {
			best, bestPattern = f, p
		}
	}

	metrics := getRouterMetrics()
	switch matched {
	case 0:
		metrics.selections.WithLabelValues("none").Inc()
		return nil, false
	case 1:
		metrics.selections.WithLabelValues("single").Inc()
	default:
		metrics.selections.WithLabelValues("ranked").Inc()
	}

	return best, true
}

// Params returns the path parameters captured by f for path.
func (s *BestMatchSelector) Params(f *flow.Flow, path string) map[string]string {
	p, err := s.cache.Get(f.PathOperator.Pattern)
	if err != nil {
		return nil
	}
	segments := SplitPath(path)
	if !p.Match(f.PathOperator.Operator, segments) {
		return nil
	}
	return p.Params(segments)
}
