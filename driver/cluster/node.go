package cluster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/cqlwire/cqlwire/driver/frame"
)

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is one cluster endpoint. It owns zero or more live connections,
// tracks aggregate load and health, and can report its least-loaded
// connection or open a new one.
type Node struct {
	endpoint   string
	connector  IConnector
	config     common.ClientConfig
	compressor frame.Compressor

	up atomic.Bool

	mu    sync.RWMutex
	conns []*Connection
}

// NewNode creates a node for the given endpoint. Nodes start in the up
// state.
func NewNode(endpoint string, connector IConnector, config common.ClientConfig, compressor frame.Compressor) *Node {
	n := &Node{
		endpoint:   endpoint,
		connector:  connector,
		config:     config,
		compressor: compressor,
	}
	n.up.Store(true)
	return n
}

// Endpoint returns the node's endpoint.
func (n *Node) Endpoint() string {
	return n.endpoint
}

// IsUp reports the node's health flag.
func (n *Node) IsUp() bool {
	return n.up.Load()
}

// MarkDown flags the node as unhealthy. Called by the transport layer on
// I/O failure.
func (n *Node) MarkDown() {
	if n.up.CompareAndSwap(true, false) {
		Logger.Warningf("node %s marked down", n.endpoint)
	}
}

// MarkUp flags the node as healthy again.
func (n *Node) MarkUp() {
	if n.up.CompareAndSwap(false, true) {
		Logger.Infof("node %s marked up", n.endpoint)
	}
}

// Load returns the aggregate in-flight load across the node's connections.
func (n *Node) Load() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	load := 0
	for _, c := range n.conns {
		load += c.Load()
	}
	return load
}

// ConnectionCount returns the number of live connections to the node.
func (n *Node) ConnectionCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.conns)
}

// LeastLoaded returns the node's least-loaded existing connection, or nil
// if the node has none.
func (n *Node) LeastLoaded() IConnection {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var best *Connection
	bestLoad := 0
	for _, c := range n.conns {
		load := c.Load()
		if best == nil || load < bestLoad {
			best = c
			bestLoad = load
		}
	}
	if best == nil {
		return nil
	}
	return best
}

// OpenConnection dials a new connection to the node, applies the socket
// tuning, performs the startup handshake and registers the connection in
// the node's pool.
func (n *Node) OpenConnection(ctx context.Context) (IConnection, error) {
	if !n.IsUp() {
		return nil, fmt.Errorf("node %s is down", n.endpoint)
	}
	if max := n.config.ConnectionsPerNode; max > 0 && n.ConnectionCount() >= max {
		return nil, fmt.Errorf("node %s reached its connection ceiling (%d)", n.endpoint, max)
	}

	raw, err := n.connector.Connect(n.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", n.endpoint, err)
	}
	if err := n.connector.UpgradeConnection(raw, n.config); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", n.endpoint, err)
	}

	c := newConnection(raw, n.endpoint, n, n.config, n.compressor)

	// Start the response reader before the handshake; the ready frame flows
	// through the regular dispatch path
	go c.readResponses()

	if err := c.startup(ctx); err != nil {
		c.Close()
		return nil, err
	}

	n.mu.Lock()
	n.conns = append(n.conns, c)
	n.mu.Unlock()

	metricConnectionsOpened.Inc()
	Logger.Infof("opened connection to %s (%d live)", n.endpoint, n.ConnectionCount())
	return c, nil
}

// removeConnection drops a closed connection from the pool.
func (n *Node) removeConnection(c *Connection) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, existing := range n.conns {
		if existing == c {
			n.conns = append(n.conns[:i], n.conns[i+1:]...)
			return
		}
	}
}

// CloseAll gracefully closes all of the node's connections.
func (n *Node) CloseAll() {
	n.mu.RLock()
	conns := make([]*Connection, len(n.conns))
	copy(conns, n.conns)
	n.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
