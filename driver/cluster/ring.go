package cluster

import "sync"

// --------------------------------------------------------------------------
// Ring
// --------------------------------------------------------------------------

// Ring is the ordered set of known cluster nodes. It is read-mostly:
// topology changes append nodes or flip health flags, never mutate the set
// element-by-element during a selection pass. Iteration order is insertion
// order, which keeps load-ranking ties stable.
type Ring struct {
	mu     sync.RWMutex
	nodes  []*Node
	lookup IReplicaLookup
}

// NewRing creates an empty ring. The lookup may be nil when partition
// ownership information is unavailable; UpNodes then returns all up nodes.
func NewRing(lookup IReplicaLookup) *Ring {
	return &Ring{lookup: lookup}
}

// AddNode appends a node to the ring. Duplicate endpoints are ignored.
func (r *Ring) AddNode(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.nodes {
		if existing.Endpoint() == n.Endpoint() {
			return
		}
	}
	r.nodes = append(r.nodes, n)
}

// Nodes returns a snapshot of all known nodes in insertion order.
func (r *Ring) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

// UpNodes returns a stable-ordered snapshot of the currently-up nodes. When
// a replica lookup is configured and yields candidates for the partition
// key, the snapshot is narrowed to those candidates; an empty candidate set
// falls back to all up nodes.
func (r *Ring) UpNodes(partitionKey []byte) []INode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates map[string]bool
	if r.lookup != nil && partitionKey != nil {
		if replicas := r.lookup.Replicas(partitionKey); len(replicas) > 0 {
			candidates = make(map[string]bool, len(replicas))
			for _, endpoint := range replicas {
				candidates[endpoint] = true
			}
		}
	}

	up := make([]INode, 0, len(r.nodes))
	for _, n := range r.nodes {
		if !n.IsUp() {
			continue
		}
		if candidates != nil && !candidates[n.Endpoint()] {
			continue
		}
		up = append(up, n)
	}

	// unknown ownership must not strand a request
	if candidates != nil && len(up) == 0 {
		for _, n := range r.nodes {
			if n.IsUp() {
				up = append(up, n)
			}
		}
	}
	return up
}

// ConnectionCount returns the cluster-wide number of live connections.
func (r *Ring) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.nodes {
		count += n.ConnectionCount()
	}
	return count
}

// CloseAll gracefully closes every connection of every node.
func (r *Ring) CloseAll() {
	for _, n := range r.Nodes() {
		n.CloseAll()
	}
}
