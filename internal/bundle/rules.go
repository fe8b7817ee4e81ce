package bundle

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludes are the system library and framework directories of macOS.
var DefaultExcludes = []string{"/usr/lib/", "/System/Library/"}

// Rules decide whether a library is part of the system and must be left in
// place. A path is excluded when it starts with any prefix or matches any
// pattern.
type Rules struct {
	prefixes []string
	patterns []string
	globs    []glob.Glob
}

// NewRules compiles the glob patterns. Patterns use '/' as separator, so '*'
// does not cross directories while '**' does.
func NewRules(prefixes, patterns []string) (*Rules, error) {
	r := &Rules{prefixes: prefixes, patterns: patterns}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		r.globs = append(r.globs, g)
	}
	return r, nil
}

func DefaultRules() *Rules {
	r, _ := NewRules(DefaultExcludes, nil)
	return r
}

// Match returns the first rule that excludes path.
func (r *Rules) Match(path string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, p := range r.prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return p, true
		}
	}
	for i, g := range r.globs {
		if g.Match(path) {
			return r.patterns[i], true
		}
	}
	return "", false
}

func (r *Rules) Excluded(path string) bool {
	_, ok := r.Match(path)
	return ok
}

func (r *Rules) Prefixes() []string {
	if r == nil {
		return nil
	}
	return r.prefixes
}

func (r *Rules) Patterns() []string {
	if r == nil {
		return nil
	}
	return r.patterns
}
