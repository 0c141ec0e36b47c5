package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cqlwire/cqlwire/driver/cluster"
	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/cqlwire/cqlwire/driver/frame"
	"github.com/cqlwire/cqlwire/driver/strategy"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

// Client is the driver façade. It owns the node ring, the connection
// strategy and the negotiated compressor.
type Client struct {
	config     common.ClientConfig
	connector  cluster.IConnector
	compressor frame.Compressor
	ring       *cluster.Ring
	strategy   strategy.IConnectionStrategy
	closed     atomic.Bool
}

// NewClient creates a client from a configuration and a transport
// connector. The lookup may be nil when partition ownership information is
// unavailable; requests are then balanced over all up nodes.
func NewClient(config common.ClientConfig, connector cluster.IConnector, lookup cluster.IReplicaLookup) (*Client, error) {
	if len(config.ContactPoints) == 0 {
		return nil, fmt.Errorf("no contact points configured")
	}

	compressor, err := frame.NewCompressor(config.Compression)
	if err != nil {
		return nil, err
	}

	ring := cluster.NewRing(lookup)
	return &Client{
		config:     config,
		connector:  connector,
		compressor: compressor,
		ring:       ring,
		strategy:   strategy.NewLoadBalanced(ring, config),
	}, nil
}

// Connect seeds the ring from the contact points and opens one connection
// per reachable node. Unreachable contact points are marked down and logged;
// only a cluster with zero reachable contact points is an error.
func (c *Client) Connect(ctx context.Context) error {
	for _, endpoint := range c.config.ContactPoints {
		c.ring.AddNode(cluster.NewNode(endpoint, c.connector, c.config, c.compressor))
	}

	reachable := 0
	for _, node := range c.ring.Nodes() {
		if _, err := node.OpenConnection(ctx); err != nil {
			Logger.Warningf("contact point %s unreachable: %v", node.Endpoint(), err)
			node.MarkDown()
			continue
		}
		reachable++
	}

	if reachable == 0 {
		return fmt.Errorf("none of the %d contact points are reachable", len(c.config.ContactPoints))
	}
	Logger.Infof("connected to %d/%d contact points via %s", reachable, len(c.config.ContactPoints), c.connector.GetName())
	return nil
}

// Execute sends a request frame to a node selected by the strategy and
// returns the response frame. A server error frame is not returned as a
// frame; it surfaces as its typed protocol error. The caller closes the
// returned frame.
func (c *Client) Execute(ctx context.Context, partitionKey []byte, req frame.Request) (frame.Frame, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client is closed")
	}

	conn, err := c.strategy.GetOrCreateConnection(ctx, partitionKey)
	if err != nil {
		return nil, err
	}
	defer c.strategy.ReturnConnection(conn)

	f, err := conn.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if ef, ok := f.(*frame.ErrorFrame); ok {
		err := ef.Err
		ef.Close()
		return nil, err
	}
	return f, nil
}

// Options asks an arbitrary up node which startup options it supports.
func (c *Client) Options(ctx context.Context) (map[string][]string, error) {
	f, err := c.Execute(ctx, nil, &frame.OptionsRequest{})
	if err != nil {
		return nil, err
	}
	defer f.Close()

	supported, ok := f.(*frame.SupportedFrame)
	if !ok {
		return nil, fmt.Errorf("unexpected %s response to options request", f.Header().Opcode)
	}
	return supported.Options, nil
}

// Query executes a CQL query string at the given consistency. The caller
// closes the returned result frame.
func (c *Client) Query(ctx context.Context, partitionKey []byte, cql string, consistency frame.Consistency) (*frame.ResultFrame, error) {
	f, err := c.Execute(ctx, partitionKey, &frame.QueryRequest{CQL: cql, Consistency: consistency})
	if err != nil {
		return nil, err
	}

	result, ok := f.(*frame.ResultFrame)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("unexpected %s response to query", f.Header().Opcode)
	}
	return result, nil
}

// Prepare prepares a CQL query string and returns the server-assigned
// statement id for later execution.
func (c *Client) Prepare(ctx context.Context, cql string) ([]byte, error) {
	f, err := c.Execute(ctx, nil, &frame.PrepareRequest{CQL: cql})
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result, ok := f.(*frame.ResultFrame)
	if !ok || result.Kind != frame.ResultKindPrepared {
		return nil, fmt.Errorf("unexpected response to prepare request")
	}

	// the prepared result body starts with the statement id as short bytes
	if len(result.Body) < 2 {
		return nil, fmt.Errorf("malformed prepared result body")
	}
	n := int(result.Body[0])<<8 | int(result.Body[1])
	if len(result.Body) < 2+n {
		return nil, fmt.Errorf("malformed prepared result body")
	}
	id := make([]byte, n)
	copy(id, result.Body[2:2+n])
	return id, nil
}

// ExecutePrepared executes a previously prepared statement. The caller
// closes the returned result frame.
func (c *Client) ExecutePrepared(ctx context.Context, partitionKey []byte, statementID []byte, values [][]byte, consistency frame.Consistency) (*frame.ResultFrame, error) {
	req := &frame.ExecuteRequest{
		StatementID: statementID,
		Values:      values,
		Consistency: consistency,
	}

	f, err := c.Execute(ctx, partitionKey, req)
	if err != nil {
		return nil, err
	}

	result, ok := f.(*frame.ResultFrame)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("unexpected %s response to execute request", f.Header().Opcode)
	}
	return result, nil
}

// Register subscribes one connection to the given server push events and
// routes them to the handler. Events keep flowing for the lifetime of that
// connection.
func (c *Client) Register(ctx context.Context, events []string, handler func(*frame.EventFrame)) error {
	if c.closed.Load() {
		return fmt.Errorf("client is closed")
	}

	conn, err := c.strategy.GetOrCreateConnection(ctx, nil)
	if err != nil {
		return err
	}
	defer c.strategy.ReturnConnection(conn)

	conn.OnEvent(handler)

	f, err := conn.Send(ctx, &frame.RegisterRequest{Events: events})
	if err != nil {
		return err
	}
	defer f.Close()

	switch resp := f.(type) {
	case *frame.ReadyFrame:
		return nil
	case *frame.ErrorFrame:
		return resp.Err
	default:
		return fmt.Errorf("unexpected %s response to register request", f.Header().Opcode)
	}
}

// Close tears down every connection. Idempotent.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.ring.CloseAll()
	}
}
