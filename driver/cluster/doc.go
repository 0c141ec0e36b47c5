// Package cluster tracks the client-side view of the database cluster: the
// nodes the driver knows about, their health, and the multiplexed
// connections carrying frames to them.
//
// The package focuses on:
//   - Connection: a single multiplexed connection with stream-id based
//     request/response correlation and an in-flight load counter
//   - Node: one cluster endpoint owning a bounded pool of connections
//   - Ring: the ordered, concurrently iterable set of known nodes
//   - IConnector: protocol-specific dialing (TCP, Unix sockets)
//
// Key Components:
//
//   - Connection.Send registers a response channel under a free stream id,
//     writes the encoded frame, and waits for the reader goroutine to
//     dispatch the matching response. Responses arrive out of order; the
//     reader goroutine demultiplexes by stream id.
//
//   - Node.OpenConnection dials, applies socket tuning, performs the
//     startup handshake and registers the connection in the node's pool.
//
// Thread Safety:
//
//	All public methods are thread-safe. Load counters and health flags use
//	atomics because the balancing strategy reads them concurrently with
//	in-flight requests mutating them.
package cluster
