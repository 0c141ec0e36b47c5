package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/cqlwire/cqlwire/driver/frame"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("cluster")

var (
	metricConnectionsOpened = metrics.GetOrCreateCounter("cqlwire_connections_opened_total")
	metricConnectionsClosed = metrics.GetOrCreateCounter("cqlwire_connections_closed_total")
	metricFramesSent        = metrics.GetOrCreateCounter("cqlwire_frames_sent_total")
	metricFramesReceived    = metrics.GetOrCreateCounter("cqlwire_frames_received_total")
)

// maxStreams is the number of stream ids available per connection. Ids are
// signed 8-bit; zero and negative values are reserved for the server side.
const maxStreams = 127

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// frameResult contains the result of a request
type frameResult struct {
	frame frame.Frame
	err   error
}

// pendingRequest tracks one in-flight stream
type pendingRequest struct {
	ch chan frameResult

	// abandoned is set when the caller stopped waiting; the reader goroutine
	// then recycles the stream id once the late response arrives
	abandoned atomic.Bool

	// released guards the single recycle of the stream id
	released atomic.Bool
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connection is a single multiplexed connection to a cluster node. Many
// logical requests share it concurrently, each under a distinct stream id.
type Connection struct {
	conn       net.Conn
	endpoint   string
	node       *Node
	config     common.ClientConfig
	compressor frame.Compressor

	streams chan int8
	pending *xsync.MapOf[int8, *pendingRequest]
	load    atomic.Int64

	eventHandler atomic.Value // func(*frame.EventFrame)

	writeMu sync.Mutex // serializes frame writes
	stopCh  chan struct{}
	closed  atomic.Bool
}

// newConnection wraps an established net.Conn. The caller starts the reader
// goroutine and performs the startup handshake.
func newConnection(conn net.Conn, endpoint string, node *Node, config common.ClientConfig, compressor frame.Compressor) *Connection {
	c := &Connection{
		conn:       conn,
		endpoint:   endpoint,
		node:       node,
		config:     config,
		compressor: compressor,
		streams:    make(chan int8, maxStreams),
		pending:    xsync.NewMapOf[int8, *pendingRequest](),
		stopCh:     make(chan struct{}),
	}
	for i := 1; i <= maxStreams; i++ {
		c.streams <- int8(i)
	}
	return c
}

// Endpoint returns the remote endpoint of the connection.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// Load returns the current number of in-flight streams.
func (c *Connection) Load() int {
	return int(c.load.Load())
}

// OnEvent registers a handler for server push events on this connection.
func (c *Connection) OnEvent(handler func(*frame.EventFrame)) {
	c.eventHandler.Store(handler)
}

// Send transmits a request frame and waits for the matching response. Safe
// for concurrent use; each call owns a distinct stream id for its lifetime.
//
// If the context is cancelled while waiting, the stream id stays parked
// until its late response arrives so it cannot be mispaired with a new
// request.
func (c *Connection) Send(ctx context.Context, req frame.Request) (frame.Frame, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("connection to %s is closed", c.endpoint)
	}

	// Acquire a stream id
	var stream int8
	select {
	case stream = <-c.streams:
	case <-c.stopCh:
		return nil, fmt.Errorf("connection to %s is closed", c.endpoint)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p := &pendingRequest{ch: make(chan frameResult, 1)}
	c.pending.Store(stream, p)
	c.load.Add(1)
	defer c.load.Add(-1)

	// The startup frame is never compressed; compression only takes effect
	// once the server has acknowledged it
	compressor := c.compressor
	if req.Opcode() == frame.OpStartup {
		compressor = nil
	}

	buf, err := frame.Encode(req, stream, compressor, c.config.CompressionMinSize, false)
	if err != nil {
		c.release(stream, p)
		return nil, err
	}

	// Set write timeout
	if c.config.TimeoutSecond > 0 {
		timeout := time.Duration(c.config.TimeoutSecond) * time.Second
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	// Lock the connection only for writing
	c.writeMu.Lock()
	_, err = c.conn.Write(buf)
	c.writeMu.Unlock()

	if err != nil {
		c.release(stream, p)
		err = fmt.Errorf("failed to write %s frame to %s: %v", req.Opcode(), c.endpoint, err)
		c.teardown(err)
		return nil, err
	}
	metricFramesSent.Inc()

	// Wait for the response, connection shutdown or cancellation
	select {
	case res := <-p.ch:
		c.release(stream, p)
		return res.frame, res.err

	case <-c.stopCh:
		return nil, fmt.Errorf("connection to %s closed while awaiting response", c.endpoint)

	case <-ctx.Done():
		p.abandoned.Store(true)
		// the response may have raced in just now
		select {
		case res := <-p.ch:
			if res.frame != nil {
				res.frame.Close()
			}
			c.release(stream, p)
		default:
		}
		return nil, ctx.Err()
	}
}

// release recycles a stream id exactly once.
func (c *Connection) release(stream int8, p *pendingRequest) {
	if p.released.CompareAndSwap(false, true) {
		c.pending.Delete(stream)
		select {
		case c.streams <- stream:
		default:
			// free list can never overflow; ids are unique
		}
	}
}

// readResponses reads frames in a loop and distributes them to waiting
// requests by stream id. Any decode failure is transport-fatal: it cannot be
// attributed to a single in-flight stream, so the whole connection is torn
// down and the owning node marked down.
func (c *Connection) readResponses() {
	for {
		// Check if we should stop
		select {
		case <-c.stopCh:
			return
		default:
		}

		f, err := frame.FromStream(c.conn, c.compressor)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.teardown(fmt.Errorf("connection to %s is broken: %v", c.endpoint, err))
			return
		}
		metricFramesReceived.Inc()

		// The body must be fully drained before the next header is parsed
		// from the shared stream
		if err := f.Drain(); err != nil {
			f.Close()
			c.teardown(fmt.Errorf("connection to %s is broken: %v", c.endpoint, err))
			return
		}

		stream := f.Header().Stream
		if stream < 0 {
			// server-initiated frame (events use stream -1)
			c.dispatchEvent(f)
			continue
		}

		p, found := c.pending.Load(stream)
		if !found {
			Logger.Warningf("received %s frame for unknown stream %d on %s", f.Header().Opcode, stream, c.endpoint)
			f.Close()
			continue
		}

		p.ch <- frameResult{frame: f}

		if p.abandoned.Load() {
			// the caller gave up; recycle the id now that its response landed
			select {
			case res := <-p.ch:
				if res.frame != nil {
					res.frame.Close()
				}
			default:
			}
			c.release(stream, p)
		}
	}
}

// dispatchEvent hands a server push frame to the registered handler.
func (c *Connection) dispatchEvent(f frame.Frame) {
	ev, ok := f.(*frame.EventFrame)
	if !ok {
		Logger.Warningf("received unexpected server-initiated %s frame on %s", f.Header().Opcode, c.endpoint)
		f.Close()
		return
	}
	if h, ok := c.eventHandler.Load().(func(*frame.EventFrame)); ok && h != nil {
		h(ev)
		return
	}
	Logger.Debugf("dropping unhandled %s event from %s", ev.Type, c.endpoint)
	ev.Close()
}

// startup performs the initial handshake on a fresh connection.
func (c *Connection) startup(ctx context.Context) error {
	compression := ""
	if c.compressor != nil {
		compression = c.compressor.Name()
	}

	f, err := c.Send(ctx, &frame.StartupRequest{Compression: compression})
	if err != nil {
		return fmt.Errorf("startup handshake with %s failed: %v", c.endpoint, err)
	}
	defer f.Close()

	switch resp := f.(type) {
	case *frame.ReadyFrame:
		return nil
	case *frame.AuthenticateFrame:
		return fmt.Errorf("node %s requires authentication (%s), which this driver does not support", c.endpoint, resp.Authenticator)
	case *frame.ErrorFrame:
		return resp.Err
	default:
		return fmt.Errorf("unexpected %s response to startup from %s", f.Header().Opcode, c.endpoint)
	}
}

// teardown closes the connection after a transport-fatal condition and marks
// the owning node down.
func (c *Connection) teardown(cause error) {
	if !c.shutdown(cause) {
		return
	}
	Logger.Errorf("%v", cause)
	if c.node != nil {
		c.node.MarkDown()
	}
}

// Close gracefully closes the connection, failing all in-flight requests.
// Idempotent.
func (c *Connection) Close() error {
	c.shutdown(fmt.Errorf("connection to %s closed", c.endpoint))
	return nil
}

// shutdown performs the single-shot connection teardown. Returns false if
// the connection was already closed.
func (c *Connection) shutdown(cause error) bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}

	close(c.stopCh)
	c.conn.Close()
	metricConnectionsClosed.Inc()

	// Unblock all waiting requests
	c.pending.Range(func(stream int8, p *pendingRequest) bool {
		select {
		case p.ch <- frameResult{err: cause}:
		default:
		}
		return true
	})

	if c.node != nil {
		c.node.removeConnection(c)
	}
	return true
}
