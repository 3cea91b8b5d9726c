package router

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/flow"
)

func flowsFor(op flow.Operator, patterns ...string) []*flow.Flow {
	flows := make([]*flow.Flow, 0, len(patterns))
	for i, p := range patterns {
		flows = append(flows, &flow.Flow{
			ID:           fmt.Sprintf("flow-%d", i),
			Enabled:      true,
			PathOperator: flow.PathOperator{Pattern: p, Operator: op},
		})
	}
	return flows
}

func TestBestMatchSelector_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		patterns []string
		path     string
		want     string
	}{
		{
			name:     "literal beats parameter",
			patterns: []string{"/path/:id", "/path/staticId"},
			path:     "/path/staticId",
			want:     "/path/staticId",
		},
		{
			name:     "literal that does not match is excluded",
			patterns: []string{"/path/:id", "/path/staticId"},
			path:     "/path/55",
			want:     "/path/:id",
		},
		{
			name:     "literal in last position wins",
			patterns: []string{"/path/:id/secondId", "/path/:id/:id2"},
			path:     "/path/5555/secondId",
			want:     "/path/:id/secondId",
		},
		{
			name:     "parameter candidate is the only match",
			patterns: []string{"/path/:id/secondId", "/path/:id/:id2"},
			path:     "/path/5555/5959",
			want:     "/path/:id/:id2",
		},
		{
			name:     "longer pattern wins",
			patterns: []string{"/", "/path", "/path/:id"},
			path:     "/path/1/extra",
			want:     "/path/:id",
		},
		{
			name:     "first differing kind decides",
			patterns: []string{"/:a/b", "/a/:b"},
			path:     "/a/b",
			want:     "/a/:b",
		},
		{
			name:     "root matches everything",
			patterns: []string{"/", "/other"},
			path:     "/anything/here",
			want:     "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewBestMatchSelector(nil)
			got, ok := s.Select(flowsFor(flow.OperatorStartsWith, tt.patterns...), tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.PathOperator.Pattern)
		})
	}
}

func TestBestMatchSelector_TieBreakIsDeclarationOrder(t *testing.T) {
	t.Parallel()

	s := NewBestMatchSelector(nil)
	flows := flowsFor(flow.OperatorStartsWith, "/pets/:id", "/pets/{petId}", "/pets/:other")

	got, ok := s.Select(flows, "/pets/7")
	require.True(t, ok)
	assert.Same(t, flows[0], got)

	reversed := []*flow.Flow{flows[2], flows[1], flows[0]}
	got, ok = s.Select(reversed, "/pets/7")
	require.True(t, ok)
	assert.Same(t, flows[2], got)
}

func TestBestMatchSelector_NoMatch(t *testing.T) {
	t.Parallel()

	s := NewBestMatchSelector(nil)

	got, ok := s.Select(nil, "/a")
	assert.False(t, ok)
	assert.Nil(t, got)

	got, ok = s.Select(flowsFor(flow.OperatorEquals, "/a", "/a/:b"), "/a/b/c")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestBestMatchSelector_MixedOperators(t *testing.T) {
	t.Parallel()

	flows := []*flow.Flow{
		{ID: "prefix", PathOperator: flow.PathOperator{Pattern: "/a", Operator: flow.OperatorStartsWith}},
		{ID: "exact", PathOperator: flow.PathOperator{Pattern: "/a/b", Operator: flow.OperatorEquals}},
	}

	s := NewBestMatchSelector(nil)

	got, ok := s.Select(flows, "/a/b")
	require.True(t, ok)
	assert.Equal(t, "exact", got.ID)

	got, ok = s.Select(flows, "/a/b/c")
	require.True(t, ok)
	assert.Equal(t, "prefix", got.ID)
}

func TestBestMatchSelector_MalformedPatternNeverMatches(t *testing.T) {
	t.Parallel()

	flows := flowsFor(flow.OperatorStartsWith, "/a/{broken", "/a")
	got, ok := NewBestMatchSelector(nil).Select(flows, "/a/{broken")
	require.True(t, ok)
	assert.Equal(t, "/a", got.PathOperator.Pattern)
}

func TestBestMatchSelector_ResultIsAlwaysACandidate(t *testing.T) {
	t.Parallel()

	patterns := []string{"/", "/a", "/:x", "/a/b", "/a/:y", "/:x/b", "/:x/:y", "/a/b/c"}
	paths := []string{"/", "/a", "/b", "/a/b", "/a/c", "/z/b", "/a/b/c", "/q/r/s/t"}
	ops := []flow.Operator{flow.OperatorEquals, flow.OperatorStartsWith}

	s := NewBestMatchSelector(NewPatternCache(4))

	for _, op := range ops {
		flows := flowsFor(op, patterns...)
		for _, path := range paths {
			got, ok := s.Select(flows, path)

			anyMatch := false
			for _, f := range flows {
				p, err := ParsePattern(f.PathOperator.Pattern)
				require.NoError(t, err)
				if p.Match(op, SplitPath(path)) {
					anyMatch = true
				}
			}

			assert.Equal(t, anyMatch, ok, "%s %s", op, path)
			if ok {
				assert.Contains(t, flows, got)
			}
		}
	}
}

func TestBestMatchSelector_Params(t *testing.T) {
	t.Parallel()

	s := NewBestMatchSelector(nil)
	f := flowsFor(flow.OperatorStartsWith, "/path/:id/:id2")[0]

	assert.Equal(t, map[string]string{"id": "5555", "id2": "5959"}, s.Params(f, "/path/5555/5959"))
	assert.Nil(t, s.Params(f, "/other"))

	broken := flowsFor(flow.OperatorStartsWith, "/{x")[0]
	assert.Nil(t, s.Params(broken, "/x"))
}
