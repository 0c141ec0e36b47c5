package strategy

import (
	"context"
	"errors"

	"github.com/cqlwire/cqlwire/driver/cluster"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("strategy")

// ErrClusterUnreachable is returned when no up node has a usable connection
// and none can be created. It is fatal from the strategy's point of view;
// retry policy belongs to the caller.
var ErrClusterUnreachable = errors.New("cluster unreachable: no node has a usable connection and none could be created")

// --------------------------------------------------------------------------
// Interface Definitions for dependency injection
// --------------------------------------------------------------------------

// IConnectionStrategy selects the connection that serves a request
type IConnectionStrategy interface {
	// GetOrCreateConnection returns a usable connection to an up node,
	// never to a known-down one
	GetOrCreateConnection(ctx context.Context, partitionKey []byte) (cluster.IConnection, error)

	// ReturnConnection hands a connection back once the caller is done
	// with it; ownership semantics depend on the strategy
	ReturnConnection(conn cluster.IConnection)
}
