package bundle

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Anchor is the dyld token a rewritten path is relative to.
type Anchor string

const (
	AnchorExecutable Anchor = "@executable_path"
	AnchorLoader     Anchor = "@loader_path"
	AnchorRPath      Anchor = "@rpath"
)

// Join appends the slash separated rel to the anchor.
func (a Anchor) Join(rel string) string {
	if rel == "." || rel == "" {
		return string(a)
	}
	return string(a) + "/" + filepath.ToSlash(rel)
}

// trim returns the remainder of p after the anchor, if p starts with it.
func (a Anchor) trim(p string) (string, bool) {
	switch {
	case p == string(a):
		return ".", true
	case strings.HasPrefix(p, string(a)+"/"):
		return strings.TrimPrefix(p, string(a)+"/"), true
	}
	return "", false
}

type candidate struct {
	path     string
	dir      string // search directory used, verbatim
	dirOwner *Node
}

// resolver maps declared references to files on disk, expanding tokens the
// way dyld does: @loader_path against the binary that declares the reference,
// @executable_path against the root.
type resolver struct {
	root  *Node
	rules *Rules
	wd    string
}

// expand resolves a non-@rpath path declared by owner.
func (r *resolver) expand(owner *Node, p string) (string, bool) {
	if rest, ok := AnchorExecutable.trim(p); ok {
		return filepath.Join(filepath.Dir(r.root.Path), rest), true
	}
	if rest, ok := AnchorLoader.trim(p); ok {
		return filepath.Join(filepath.Dir(owner.Path), rest), true
	}
	if strings.HasPrefix(p, "@") {
		return "", false
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), true
	}
	return filepath.Join(r.wd, p), true
}

// candidates lists the paths ref may designate, in search order. @rpath
// references try the consumer's search directories first, then the root's.
func (r *resolver) candidates(consumer *Node, ref string) []candidate {
	rest, ok := AnchorRPath.trim(ref)
	if !ok {
		p, ok := r.expand(consumer, ref)
		if !ok {
			return nil
		}
		return []candidate{{path: p}}
	}

	var cs []candidate
	seen := map[string]struct{}{}
	for _, owner := range []*Node{consumer, r.root} {
		for _, dir := range owner.RPaths {
			d, ok := r.expand(owner, dir)
			if !ok {
				continue
			}
			p := filepath.Join(d, rest)
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			cs = append(cs, candidate{path: p, dir: dir, dirOwner: owner})
		}
	}
	return cs
}

// resolve returns the first candidate that exists, with symlinks evaluated.
// A candidate is excluded when either its declared or its real path matches
// the rules. System libraries may only live in the shared cache, so when no
// candidate exists the first excluded one stands in for it.
func (r *resolver) resolve(consumer *Node, ref string) (candidate, bool, error) {
	cs := r.candidates(consumer, ref)
	var fallback *candidate
	for i, c := range cs {
		excluded := r.rules.Excluded(c.path)

		real, err := filepath.EvalSymlinks(c.path)
		if err != nil {
			if excluded && fallback == nil {
				fallback = &cs[i]
			}
			if excluded || errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return c, false, &InspectionError{Path: c.path, Err: err}
		}
		c.path = real
		return c, excluded || r.rules.Excluded(real), nil
	}
	if fallback != nil {
		return *fallback, true, nil
	}

	tried := make([]string, len(cs))
	for i := range cs {
		tried[i] = cs[i].path
	}
	return candidate{}, false, &UnresolvableError{
		Consumer:   consumer.Path,
		Reference:  ref,
		Candidates: tried,
	}
}
