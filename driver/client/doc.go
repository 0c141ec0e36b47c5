// Package client is the composition root of the driver. It wires the frame
// protocol engine, the connection pool and the connection strategy into one
// façade that applications talk to.
//
// The package focuses on:
//   - Seeding the node ring from the configured contact points
//   - Routing each request through the connection strategy
//   - Translating server error frames into the typed protocol errors
//
// Key Components:
//
//   - NewClient: Factory function that builds a client from a configuration
//     and a transport connector (see the cluster/tcp and cluster/unix
//     packages).
//
//   - Client.Execute: Sends an arbitrary request frame to a node selected
//     by the strategy and returns the decoded response frame.
//
//   - Convenience wrappers (Options, Query, Prepare, ExecutePrepared,
//     Register) around the common request types.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  ContactPoints:          []string{"localhost:9042"},
//	  TimeoutSecond:          5,
//	  NewConnectionThreshold: 40,
//	  Compression:            "snappy",
//	}
//
//	c, _ := client.NewClient(config, tcp.NewConnector(), nil)
//	if err := c.Connect(context.Background()); err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	result, _ := c.Query(context.Background(), nil, "SELECT now() FROM system.local", frame.Quorum)
//	defer result.Close()
//
// Thread Safety:
//
//	The client is thread-safe and intended to be shared; concurrent requests
//	are multiplexed over the pooled connections.
package client
