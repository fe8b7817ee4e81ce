package bundle

import "sync"

// registry deduplicates nodes by resolved path. One registry lives for a
// single discovery run.
type registry struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

func newRegistry() *registry {
	return &registry{nodes: map[string]*Node{}}
}

// insert stores n unless a node with the same path is already known. It
// returns the stored node and whether n was inserted.
func (r *registry) insert(n *Node) (*Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nodes[n.Path]; ok {
		return existing, false
	}
	r.nodes[n.Path] = n
	return n, true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}
