package bundle

import (
	"errors"
	"path/filepath"
	"slices"
)

type RewriteKind int

const (
	RewriteReference RewriteKind = iota
	RewriteIdentity
)

func (k RewriteKind) String() string {
	if k == RewriteIdentity {
		return "identity"
	}
	return "reference"
}

// Copy places one library into the bundle. InPlace is set when the library
// was discovered at its destination already.
type Copy struct {
	Node        *Node
	Source      string
	Destination string
	InPlace     bool
}

// Rewrite changes one load command of Target, the consumer's final location.
// Dependency is nil for identity rewrites. Done is set when the command
// already holds New.
type Rewrite struct {
	Kind       RewriteKind
	Target     string
	Consumer   *Node
	Dependency *Node
	Old        string
	New        string
	Anchor     Anchor
	Done       bool
}

type RPathOp int

const (
	RPathAdd RPathOp = iota
	RPathDelete
)

func (op RPathOp) String() string {
	if op == RPathDelete {
		return "delete"
	}
	return "add"
}

// RPathChange adds or removes a search directory of the executable.
type RPathChange struct {
	Target string
	Dir    string
	Op     RPathOp
}

// Plan holds every instruction apply needs. It is fully resolved before any
// file is touched.
type Plan struct {
	Graph    *Graph
	LibDir   string
	Copies   []*Copy
	Rewrites []*Rewrite
	RPaths   []*RPathChange
}

type Status string

const (
	StatusExcluded Status = "excluded"
	StatusBundle   Status = "bundle"
	StatusBundled  Status = "bundled"
)

// Plan assigns each bundlable node its destination and derives the copy and
// rewrite instructions. Destination collisions are all reported and no plan is
// returned.
func (b *Bundler) Plan(g *Graph) (*Plan, error) {
	libDir := b.libDir
	if libDir == "" {
		libDir = DefaultLibDir
	}
	if !filepath.IsAbs(libDir) {
		libDir = filepath.Join(filepath.Dir(g.Root.Path), libDir)
	}
	libDir = filepath.Clean(libDir)

	p := &Plan{Graph: g, LibDir: libDir}

	dests := map[string][]*Node{}
	var order []string
	for _, n := range g.Bundlable() {
		dest := filepath.Join(libDir, filepath.Base(n.Path))
		if _, ok := dests[dest]; !ok {
			order = append(order, dest)
		}
		dests[dest] = append(dests[dest], n)
	}

	var collisions []error
	for _, dest := range order {
		ns := dests[dest]
		if len(ns) < 2 {
			continue
		}
		if bundled, ok := bundledEarlier(dest, ns); ok {
			for _, n := range ns {
				if n != bundled {
					b.logger.Debugf("%s: already bundled as %s", n.Path, dest)
					n.BundledPath = dest
				}
			}
			dests[dest] = []*Node{bundled}
			continue
		}
		err := &CollisionError{Destination: dest}
		for _, n := range ns {
			err.Sources = append(err.Sources, n.Path)
		}
		collisions = append(collisions, err)
	}
	if len(collisions) > 0 {
		return nil, errors.Join(collisions...)
	}

	for _, dest := range order {
		n := dests[dest][0]
		n.BundledPath = dest
		p.Copies = append(p.Copies, &Copy{
			Node:        n,
			Source:      n.Path,
			Destination: dest,
			InPlace:     n.Path == dest,
		})
	}

	for _, c := range p.Copies {
		if c.Node.ID == "" {
			continue
		}
		id := AnchorLoader.Join(filepath.Base(c.Destination))
		p.Rewrites = append(p.Rewrites, &Rewrite{
			Kind:     RewriteIdentity,
			Target:   c.Destination,
			Consumer: c.Node,
			Old:      c.Node.ID,
			New:      id,
			Anchor:   AnchorLoader,
			Done:     c.Node.ID == id,
		})
	}

	type key struct{ target, old string }
	seen := map[key]struct{}{}
	for _, e := range g.Edges {
		if e.Dependency.Excluded {
			continue
		}

		anchor, target := AnchorLoader, e.Consumer.BundledPath
		if e.Consumer.Kind == KindExecutable {
			anchor, target = AnchorExecutable, e.Consumer.Path
		}
		if _, ok := seen[key{target, e.Reference}]; ok {
			continue
		}
		seen[key{target, e.Reference}] = struct{}{}

		rel, err := filepath.Rel(filepath.Dir(target), e.Dependency.BundledPath)
		if err != nil {
			return nil, err
		}
		to := anchor.Join(rel)
		p.Rewrites = append(p.Rewrites, &Rewrite{
			Kind:       RewriteReference,
			Target:     target,
			Consumer:   e.Consumer,
			Dependency: e.Dependency,
			Old:        e.Reference,
			New:        to,
			Anchor:     anchor,
			Done:       e.Reference == to,
		})
	}

	p.RPaths = b.planRPaths(g, libDir, len(p.Copies) > 0)
	return p, nil
}

// bundledEarlier returns the node of ns that is the copy an earlier run left
// at dest. The other nodes are then the library it was copied from, reached
// through a reference that run did not get to rewrite.
func bundledEarlier(dest string, ns []*Node) (*Node, bool) {
	id := AnchorLoader.Join(filepath.Base(dest))
	var bundled *Node
	for _, n := range ns {
		if n.Path != dest {
			continue
		}
		if n.ID != id {
			return nil, false
		}
		bundled = n
	}
	return bundled, bundled != nil
}

// planRPaths adds the bundle directory to the executable's search path and,
// unless kept, drops directories that neither point at the bundle nor were
// needed to find an excluded library.
func (b *Bundler) planRPaths(g *Graph, libDir string, bundling bool) []*RPathChange {
	root := g.Root
	var changes []*RPathChange

	rel, err := filepath.Rel(filepath.Dir(root.Path), libDir)
	if err != nil {
		return nil
	}
	bundleDir := AnchorExecutable.Join(rel)
	if bundling && !slices.Contains(root.RPaths, bundleDir) {
		changes = append(changes, &RPathChange{Target: root.Path, Dir: bundleDir, Op: RPathAdd})
	}
	if b.keepRPaths {
		return changes
	}

	needed := map[string]struct{}{}
	for _, e := range g.Edges {
		if e.Dependency.Excluded && e.SearchDirOwner == root {
			needed[e.SearchDir] = struct{}{}
		}
	}

	res := &resolver{root: root, rules: b.rules}
	seen := map[string]struct{}{}
	for _, dir := range root.RPaths {
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}

		if dir == bundleDir {
			continue
		}
		if _, ok := needed[dir]; ok {
			continue
		}
		if d, ok := res.expand(root, dir); ok && b.rules.Excluded(d+string(filepath.Separator)) {
			continue
		}
		changes = append(changes, &RPathChange{Target: root.Path, Dir: dir, Op: RPathDelete})
	}
	return changes
}

// Pending reports whether anything is left to do.
func (p *Plan) Pending() bool {
	for _, c := range p.Copies {
		if !c.InPlace {
			return true
		}
	}
	for _, rw := range p.Rewrites {
		if !rw.Done {
			return true
		}
	}
	return len(p.RPaths) > 0
}

// Status classifies n. A bundlable node is bundled once it sits at its
// destination and no rewrite involving it is pending. A nil plan classifies
// from the graph alone.
func (p *Plan) Status(n *Node) Status {
	if n.Excluded {
		return StatusExcluded
	}
	if p == nil || n.BundledPath == "" || n.Path != n.BundledPath {
		return StatusBundle
	}
	for _, rw := range p.Rewrites {
		if rw.Done {
			continue
		}
		if rw.Consumer == n || rw.Dependency == n {
			return StatusBundle
		}
	}
	return StatusBundled
}

// ForTarget returns the rewrites of the given file in plan order.
func (p *Plan) ForTarget(target string) []*Rewrite {
	var rws []*Rewrite
	for _, rw := range p.Rewrites {
		if rw.Target == target {
			rws = append(rws, rw)
		}
	}
	return rws
}
