package router

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/flow"
)

// Segment is one element of a tokenized path pattern.
type Segment struct {
	Value   string
	IsParam bool
	Name    string
}

// Pattern is a tokenized path pattern. It is immutable once parsed.
type Pattern struct {
	raw      string
	segments []Segment
}

// ParsePattern tokenizes a path pattern. The root pattern "/" has no
// segments.
func ParsePattern(pattern string) (*Pattern, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("path pattern must start with '/': %q", pattern)
	}

	parts := SplitPath(pattern)
	segments := make([]Segment, 0, len(parts))

	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		segments = append(segments, seg)
	}

	return &Pattern{raw: pattern, segments: segments}, nil
}

func parseSegment(part string) (Segment, error) {
	switch {
	case strings.HasPrefix(part, ":"):
		name := part[1:]
		if name == "" {
			return Segment{}, fmt.Errorf("parameter segment %q has no name", part)
		}
		return Segment{Value: part, IsParam: true, Name: name}, nil

	case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
		name := part[1 : len(part)-1]
		if name == "" {
			return Segment{}, fmt.Errorf("parameter segment %q has no name", part)
		}
		return Segment{Value: part, IsParam: true, Name: name}, nil

	case strings.ContainsAny(part, "{}"):
		return Segment{}, fmt.Errorf("unbalanced braces in segment %q", part)
	}

	return Segment{Value: part}, nil
}

// SplitPath splits a request path into its non-empty segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.raw
}

// Segments returns the tokenized segments. The slice must not be modified.
func (p *Pattern) Segments() []Segment {
	return p.segments
}

// Len returns the number of segments.
func (p *Pattern) Len() int {
	return len(p.segments)
}

// Match reports whether the request path segments match the pattern
// under op. EQUALS requires identical segment counts; STARTS_WITH
// requires the pattern to be a segment-wise prefix of the path.
func (p *Pattern) Match(op flow.Operator, path []string) bool {
	switch op {
	case flow.OperatorEquals:
		if len(path) != len(p.segments) {
			return false
		}
	case flow.OperatorStartsWith:
		if len(path) < len(p.segments) {
			return false
		}
	default:
		return false
	}

	for i, seg := range p.segments {
		if seg.IsParam {
			if path[i] == "" {
				return false
			}
			continue
		}
		if path[i] != seg.Value {
			return false
		}
	}

	return true
}

// Params extracts parameter values from path segments. It assumes the
// path already matched the pattern.
func (p *Pattern) Params(path []string) map[string]string {
	var params map[string]string
	for i, seg := range p.segments {
		if !seg.IsParam || i >= len(path) {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		params[seg.Name] = path[i]
	}
	return params
}

// compareSpecificity orders two patterns by specificity. It returns a
// positive value when a is more specific than b, negative when less and
// zero when they are equally specific.
func compareSpecificity(a, b *Pattern) int {
	if d := len(a.segments) - len(b.segments); d != 0 {
		return d
	}
	for i := range a.segments {
		ap, bp := a.segments[i].IsParam, b.segments[i].IsParam
		if ap == bp {
			continue
		}
		if !ap {
			return 1
		}
		return -1
	}
	return 0
}
