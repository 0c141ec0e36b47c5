package cluster

import (
	"context"
	"net"

	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/cqlwire/cqlwire/driver/frame"
)

// --------------------------------------------------------------------------
// Interface Definitions for dependency injection
// --------------------------------------------------------------------------

// IConnector defines the interface for transport-specific connection
// operations
type IConnector interface {
	// Connect establishes a single connection to the given endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established
	// connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// IConnection is one multiplexed connection to a cluster node.
type IConnection interface {
	// Endpoint returns the remote endpoint of the connection
	Endpoint() string

	// Load returns the current number of in-flight streams
	Load() int

	// Send transmits a request frame and waits for the matching response
	Send(ctx context.Context, req frame.Request) (frame.Frame, error)

	// OnEvent registers a handler for server push events on this connection
	OnEvent(handler func(*frame.EventFrame))

	// Close tears the connection down, failing all in-flight requests
	Close() error
}

// INode is one cluster endpoint with its connection pool.
type INode interface {
	// Endpoint returns the node's endpoint
	Endpoint() string

	// IsUp reports the node's health flag
	IsUp() bool

	// Load returns the aggregate in-flight load across the node's connections
	Load() int

	// ConnectionCount returns the number of live connections to the node
	ConnectionCount() int

	// LeastLoaded returns the node's least-loaded existing connection, or
	// nil if the node has none
	LeastLoaded() IConnection

	// OpenConnection dials a new connection to the node, performing the
	// startup handshake
	OpenConnection(ctx context.Context) (IConnection, error)
}

// IRing is the queryable set of known cluster nodes.
type IRing interface {
	// UpNodes returns a stable-ordered snapshot of the currently-up nodes,
	// narrowed to the owners of the given partition key when ownership
	// information is available
	UpNodes(partitionKey []byte) []INode

	// ConnectionCount returns the cluster-wide number of live connections
	ConnectionCount() int
}

// IReplicaLookup maps a partition key to the endpoints of its candidate
// nodes. The token-ring algorithm behind it is owned by an external
// collaborator.
type IReplicaLookup interface {
	Replicas(partitionKey []byte) []string
}
