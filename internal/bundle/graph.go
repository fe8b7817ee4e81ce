package bundle

// NodeKind tells the root executable apart from the libraries it loads.
type NodeKind int

const (
	KindLibrary NodeKind = iota
	KindExecutable
)

func (k NodeKind) String() string {
	if k == KindExecutable {
		return "executable"
	}
	return "library"
}

// Node is one binary of the closure. Path is the resolved absolute path and
// the identity key of the node.
type Node struct {
	Kind         NodeKind
	OriginalPath string   // reference as first declared, tokens included
	Path         string   // resolved absolute path, symlinks evaluated
	ID           string   // self-identity as read, empty for executables
	RPaths       []string // search directories as read
	Excluded     bool

	// BundledPath is the destination assigned by planning. Empty for excluded
	// nodes and for the root.
	BundledPath string
}

// Edge is a dependency declared by Consumer. Reference is kept verbatim since
// rewrites match it exactly.
type Edge struct {
	Consumer   *Node
	Reference  string
	Dependency *Node

	// SearchDir and SearchDirOwner are set when the reference was resolved
	// through an @rpath search directory.
	SearchDir      string
	SearchDirOwner *Node
}

// Graph is the discovered closure. Nodes excludes the root and is in
// discovery order.
type Graph struct {
	Root  *Node
	Nodes []*Node
	Edges []*Edge
}

// Bundlable returns the non-excluded nodes in discovery order.
func (g *Graph) Bundlable() []*Node {
	var ns []*Node
	for _, n := range g.Nodes {
		if !n.Excluded {
			ns = append(ns, n)
		}
	}
	return ns
}

// EdgesFrom returns the edges whose consumer is n.
func (g *Graph) EdgesFrom(n *Node) []*Edge {
	var es []*Edge
	for _, e := range g.Edges {
		if e.Consumer == n {
			es = append(es, e)
		}
	}
	return es
}

// Node returns the node at path, or nil.
func (g *Graph) Node(path string) *Node {
	for _, n := range g.Nodes {
		if n.Path == path {
			return n
		}
	}
	return nil
}
