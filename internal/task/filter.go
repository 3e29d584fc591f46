package task

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects managed resource ids by glob pattern. A filter with no
// patterns matches everything.
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFilter compiles patterns. Patterns use '/' as the separator, so "*"
// does not cross it while "**" does.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid resource pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// MatchAll returns a filter that accepts every id.
func MatchAll() *Filter { return &Filter{} }

// Match reports whether id is managed.
func (f *Filter) Match(id string) bool {
	if f == nil || len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.patterns...)
}
