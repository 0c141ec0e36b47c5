package strategy

import (
	"context"
	"sort"

	"github.com/cqlwire/cqlwire/driver/cluster"
	"github.com/cqlwire/cqlwire/driver/common"
)

// --------------------------------------------------------------------------
// Load-Balanced Strategy
// --------------------------------------------------------------------------

// LoadBalanced selects connections by in-flight load. Connections are
// shared, never checked out exclusively, so ReturnConnection is a no-op.
type LoadBalanced struct {
	ring   cluster.IRing
	config common.ClientConfig
}

// NewLoadBalanced creates a load-balanced strategy over the given ring.
func NewLoadBalanced(ring cluster.IRing, config common.ClientConfig) *LoadBalanced {
	return &LoadBalanced{
		ring:   ring,
		config: config,
	}
}

// rankedNode freezes one node's pool stats for the duration of a selection
// call; live counters move underneath concurrent requests, and ranking on a
// snapshot keeps the passes self-consistent
type rankedNode struct {
	node  cluster.INode
	load  int
	conns int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IConnectionStrategy)
// --------------------------------------------------------------------------

// GetOrCreateConnection selects a connection in up to three passes over the
// up nodes, ranked ascending by load:
//
//  1. reuse: scan connection-bearing nodes for a connection whose load is
//     below the new-connection threshold (nodes without connections rank
//     last, so the scan ends at the first of them),
//  2. create: unless the cluster-wide connection maximum is reached, open a
//     new connection, starting at the node where the reuse pass stopped and
//     wrapping around; per-node failures are swallowed and the next node
//     tried,
//  3. fall back to the least-loaded existing connection anywhere.
//
// Only when all passes come up empty is ErrClusterUnreachable returned.
func (s *LoadBalanced) GetOrCreateConnection(ctx context.Context, partitionKey []byte) (cluster.IConnection, error) {
	up := s.ring.UpNodes(partitionKey)
	if len(up) == 0 {
		return nil, ErrClusterUnreachable
	}

	ranked := make([]rankedNode, len(up))
	for i, n := range up {
		ranked[i] = rankedNode{node: n, load: n.Load(), conns: n.ConnectionCount()}
	}

	// nodes without connections are treated as maximally loaded so that
	// warmed connections are preferred over fresh handshakes; ties keep
	// ring order
	sort.SliceStable(ranked, func(i, j int) bool {
		if (ranked[i].conns == 0) != (ranked[j].conns == 0) {
			return ranked[j].conns == 0
		}
		return ranked[i].load < ranked[j].load
	})

	// Pass 1: reuse an existing connection below the threshold. All
	// connection-bearing nodes precede connection-less ones, so the first
	// node without connections ends the scan.
	stop := len(ranked)
	for i, rn := range ranked {
		if rn.conns == 0 {
			stop = i
			break
		}
		if c := rn.node.LeastLoaded(); c != nil && c.Load() < s.config.NewConnectionThreshold {
			return c, nil
		}
	}

	// Pass 2: create a new connection, giving under-connected nodes first
	// chance. Creation failures only skip the candidate node.
	if s.config.MaxConnections <= 0 || s.ring.ConnectionCount() < s.config.MaxConnections {
		for i := 0; i < len(ranked); i++ {
			rn := ranked[(stop+i)%len(ranked)]
			c, err := rn.node.OpenConnection(ctx)
			if err == nil {
				return c, nil
			}
			Logger.Debugf("skipping node %s: %v", rn.node.Endpoint(), err)
		}
	}

	// Pass 3: every connection is busy and no new one could be opened; take
	// the least-loaded one that exists anywhere
	var best cluster.IConnection
	bestLoad := 0
	for _, rn := range ranked {
		c := rn.node.LeastLoaded()
		if c == nil {
			continue
		}
		if load := c.Load(); best == nil || load < bestLoad {
			best = c
			bestLoad = load
		}
	}
	if best != nil {
		return best, nil
	}

	return nil, ErrClusterUnreachable
}

// ReturnConnection is a no-op: load-balanced connections are shared, not
// checked out, and their in-flight counters already track completion.
func (s *LoadBalanced) ReturnConnection(conn cluster.IConnection) {}
