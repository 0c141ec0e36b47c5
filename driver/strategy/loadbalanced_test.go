package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/cqlwire/cqlwire/driver/cluster"
	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/cqlwire/cqlwire/driver/frame"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeConn struct {
	endpoint string
	load     int
}

func (c *fakeConn) Endpoint() string { return c.endpoint }
func (c *fakeConn) Load() int        { return c.load }
func (c *fakeConn) Send(ctx context.Context, req frame.Request) (frame.Frame, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeConn) OnEvent(handler func(*frame.EventFrame)) {}
func (c *fakeConn) Close() error                            { return nil }

type fakeNode struct {
	endpoint string
	down     bool
	conns    []*fakeConn

	openErr error
	opened  int // OpenConnection calls
}

func (n *fakeNode) Endpoint() string { return n.endpoint }
func (n *fakeNode) IsUp() bool       { return !n.down }

func (n *fakeNode) Load() int {
	load := 0
	for _, c := range n.conns {
		load += c.load
	}
	return load
}

func (n *fakeNode) ConnectionCount() int { return len(n.conns) }

func (n *fakeNode) LeastLoaded() cluster.IConnection {
	var best *fakeConn
	for _, c := range n.conns {
		if best == nil || c.load < best.load {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best
}

func (n *fakeNode) OpenConnection(ctx context.Context) (cluster.IConnection, error) {
	n.opened++
	if n.openErr != nil {
		return nil, n.openErr
	}
	c := &fakeConn{endpoint: n.endpoint}
	n.conns = append(n.conns, c)
	return c, nil
}

type fakeRing struct {
	nodes []*fakeNode
}

func (r *fakeRing) UpNodes(partitionKey []byte) []cluster.INode {
	up := make([]cluster.INode, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.IsUp() {
			up = append(up, n)
		}
	}
	return up
}

func (r *fakeRing) ConnectionCount() int {
	count := 0
	for _, n := range r.nodes {
		count += len(n.conns)
	}
	return count
}

func testConfig() common.ClientConfig {
	return common.ClientConfig{
		NewConnectionThreshold: 40,
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestReusesIdleConnection(t *testing.T) {
	node := &fakeNode{endpoint: "node-a", conns: []*fakeConn{{endpoint: "node-a", load: 5}}}
	ring := &fakeRing{nodes: []*fakeNode{node}}

	s := NewLoadBalanced(ring, testConfig())
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}
	if conn.Load() != 5 {
		t.Errorf("expected the existing connection with load 5, got load %d", conn.Load())
	}
	if node.opened != 0 {
		t.Errorf("expected no new connections, got %d", node.opened)
	}
}

func TestPrefersLeastLoadedNode(t *testing.T) {
	busy := &fakeNode{endpoint: "node-a", conns: []*fakeConn{{endpoint: "node-a", load: 30}}}
	idle := &fakeNode{endpoint: "node-b", conns: []*fakeConn{{endpoint: "node-b", load: 10}}}
	ring := &fakeRing{nodes: []*fakeNode{busy, idle}}

	s := NewLoadBalanced(ring, testConfig())
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}
	if conn.Endpoint() != "node-b" {
		t.Errorf("expected node-b's connection, got %s", conn.Endpoint())
	}
}

func TestConnectionlessNodesRankLast(t *testing.T) {
	// node-a comes first in ring order and has no connections; the warmed
	// connection on node-b must still win the reuse pass
	fresh := &fakeNode{endpoint: "node-a"}
	warmed := &fakeNode{endpoint: "node-b", conns: []*fakeConn{{endpoint: "node-b", load: 5}}}
	ring := &fakeRing{nodes: []*fakeNode{fresh, warmed}}

	s := NewLoadBalanced(ring, testConfig())
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}
	if conn.Endpoint() != "node-b" {
		t.Errorf("expected reuse of node-b's connection, got %s", conn.Endpoint())
	}
	if fresh.opened != 0 {
		t.Errorf("expected no handshake with node-a, got %d", fresh.opened)
	}
}

func TestCreatesOnUnderConnectedNode(t *testing.T) {
	// node-a's only connection is over the threshold; node-b has none, so
	// the creation pass starts there
	a := &fakeNode{endpoint: "node-a", conns: []*fakeConn{{endpoint: "node-a", load: 50}}}
	b := &fakeNode{endpoint: "node-b"}
	ring := &fakeRing{nodes: []*fakeNode{a, b}}

	s := NewLoadBalanced(ring, testConfig())
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}
	if conn.Endpoint() != "node-b" {
		t.Errorf("expected a new connection on node-b, got %s", conn.Endpoint())
	}
	if b.opened != 1 || a.opened != 0 {
		t.Errorf("expected exactly one creation on node-b; got a=%d b=%d", a.opened, b.opened)
	}
}

func TestCreationSkipsFailingNodes(t *testing.T) {
	a := &fakeNode{endpoint: "node-a", openErr: errors.New("connection refused")}
	b := &fakeNode{endpoint: "node-b"}
	ring := &fakeRing{nodes: []*fakeNode{a, b}}

	s := NewLoadBalanced(ring, testConfig())
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}
	if conn.Endpoint() != "node-b" {
		t.Errorf("expected fallback to node-b, got %s", conn.Endpoint())
	}
	if a.opened != 1 {
		t.Errorf("expected one swallowed creation attempt on node-a, got %d", a.opened)
	}
}

func TestMaxConnectionsFallsBackToBusiest(t *testing.T) {
	a := &fakeNode{endpoint: "node-a", conns: []*fakeConn{{endpoint: "node-a", load: 90}}}
	b := &fakeNode{endpoint: "node-b", conns: []*fakeConn{{endpoint: "node-b", load: 70}}}
	ring := &fakeRing{nodes: []*fakeNode{a, b}}

	config := testConfig()
	config.MaxConnections = 2 // already at the ceiling

	s := NewLoadBalanced(ring, config)
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}
	if conn.Endpoint() != "node-b" || conn.Load() != 70 {
		t.Errorf("expected the least-loaded existing connection, got %s (load %d)", conn.Endpoint(), conn.Load())
	}
	if a.opened != 0 || b.opened != 0 {
		t.Errorf("expected no creations at the ceiling; got a=%d b=%d", a.opened, b.opened)
	}
}

func TestClusterUnreachable(t *testing.T) {
	t.Run("no up nodes", func(t *testing.T) {
		ring := &fakeRing{nodes: []*fakeNode{{endpoint: "node-a", down: true}}}

		s := NewLoadBalanced(ring, testConfig())
		if _, err := s.GetOrCreateConnection(context.Background(), nil); !errors.Is(err, ErrClusterUnreachable) {
			t.Errorf("expected ErrClusterUnreachable, got %v", err)
		}
	})

	t.Run("no connections and creation fails everywhere", func(t *testing.T) {
		ring := &fakeRing{nodes: []*fakeNode{
			{endpoint: "node-a", openErr: errors.New("connection refused")},
			{endpoint: "node-b", openErr: errors.New("connection refused")},
		}}

		s := NewLoadBalanced(ring, testConfig())
		if _, err := s.GetOrCreateConnection(context.Background(), nil); !errors.Is(err, ErrClusterUnreachable) {
			t.Errorf("expected ErrClusterUnreachable, got %v", err)
		}
	})
}

func TestReturnConnectionIsNoOp(t *testing.T) {
	node := &fakeNode{endpoint: "node-a", conns: []*fakeConn{{endpoint: "node-a", load: 5}}}
	ring := &fakeRing{nodes: []*fakeNode{node}}

	s := NewLoadBalanced(ring, testConfig())
	conn, err := s.GetOrCreateConnection(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetOrCreateConnection failed: %v", err)
	}

	s.ReturnConnection(conn)
	if node.ConnectionCount() != 1 {
		t.Errorf("ReturnConnection must not change the pool, got %d connections", node.ConnectionCount())
	}
}
