package router

import "strings"

// MethodMatcher matches HTTP methods.
type MethodMatcher struct {
	methods map[string]bool
}

// NewMethodMatcher creates a new method matcher. An empty list matches
// every method.
func NewMethodMatcher(methods []string) *MethodMatcher {
	m := &MethodMatcher{
		methods: make(map[string]bool, len(methods)),
	}

	for _, method := range methods {
		m.methods[strings.ToUpper(method)] = true
	}

	return m
}

// Match checks if the method matches.
func (m *MethodMatcher) Match(method string) bool {
	if len(m.methods) == 0 || m.methods["*"] {
		return true
	}

	method = strings.ToUpper(method)

	// HEAD automatically matches GET
	if method == "HEAD" && m.methods["GET"] {
		return true
	}

	return m.methods[method]
}
