package cluster

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/cqlwire/cqlwire/driver/frame"
)

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// testConfig returns a config suitable for in-memory pipe transports
func testConfig() common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: 5,
	}
}

// appendString appends a [short][bytes] encoded string
func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// readyBody is the empty body of a ready response
var readyBody = []byte{}

// supportedBody encodes a string multimap with a single option
func supportedBody() []byte {
	buf := binary.BigEndian.AppendUint16(nil, 1)
	buf = appendString(buf, "CQL_VERSION")
	buf = binary.BigEndian.AppendUint16(buf, 1)
	buf = appendString(buf, "3.0.0")
	return buf
}

// voidResultBody encodes a result frame of kind void
func voidResultBody() []byte {
	return binary.BigEndian.AppendUint32(nil, 1)
}

// readTimeoutBody encodes an error body carrying read timeout diagnostics
func readTimeoutBody() []byte {
	buf := binary.BigEndian.AppendUint32(nil, 0x1200)
	buf = appendString(buf, "read timed out")
	buf = binary.BigEndian.AppendUint16(buf, uint16(frame.Quorum))
	buf = binary.BigEndian.AppendUint32(buf, 1)
	buf = binary.BigEndian.AppendUint32(buf, 2)
	return append(buf, 0)
}

// writeResponse writes a response frame with the given stream, opcode and
// body to the server side of a pipe
func writeResponse(w io.Writer, stream int8, opcode byte, body []byte) error {
	buf := make([]byte, 8+len(body))
	buf[0] = 0x82
	buf[2] = byte(stream)
	buf[3] = opcode
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[8:], body)
	_, err := w.Write(buf)
	return err
}

// opNoResponse makes serveScripted swallow a request without answering
const opNoResponse byte = 0xFF

// serveScripted reads request frames from the server side of a pipe and
// answers each one via the handler; it stops when the pipe breaks
func serveScripted(conn net.Conn, handle func(opcode byte, body []byte) (byte, []byte)) {
	for {
		header := make([]byte, 8)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header[4:8])
		body := make([]byte, length)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		respOpcode, respBody := handle(header[3], body)
		if respOpcode == opNoResponse {
			continue
		}
		if err := writeResponse(conn, int8(header[2]), respOpcode, respBody); err != nil {
			return
		}
	}
}

// defaultHandler answers the handshake and the basic request types
func defaultHandler(opcode byte, body []byte) (byte, []byte) {
	switch frame.Opcode(opcode) {
	case frame.OpStartup:
		return byte(frame.OpReady), readyBody
	case frame.OpOptions:
		return byte(frame.OpSupported), supportedBody()
	case frame.OpQuery:
		return byte(frame.OpResult), voidResultBody()
	default:
		return byte(frame.OpReady), readyBody
	}
}

// pipeConnector hands out in-memory pipes, each served by a scripted peer
type pipeConnector struct {
	handle func(opcode byte, body []byte) (byte, []byte)

	mu      sync.Mutex
	servers []net.Conn
}

func newPipeConnector(handle func(opcode byte, body []byte) (byte, []byte)) *pipeConnector {
	if handle == nil {
		handle = defaultHandler
	}
	return &pipeConnector{handle: handle}
}

func (c *pipeConnector) Connect(endpoint string) (net.Conn, error) {
	client, server := net.Pipe()

	c.mu.Lock()
	c.servers = append(c.servers, server)
	c.mu.Unlock()

	go serveScripted(server, c.handle)
	return client, nil
}

func (c *pipeConnector) GetName() string {
	return "pipe"
}

func (c *pipeConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return nil
}

// lastServer returns the server side of the most recently created pipe
func (c *pipeConnector) lastServer() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.servers[len(c.servers)-1]
}

// --------------------------------------------------------------------------
// Node Tests
// --------------------------------------------------------------------------

func TestNodeOpenConnectionHandshake(t *testing.T) {
	node := NewNode("node-a", newPipeConnector(nil), testConfig(), nil)
	defer node.CloseAll()

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	if node.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", node.ConnectionCount())
	}

	// the handshaken connection must be usable for requests
	f, err := conn.Send(context.Background(), &frame.OptionsRequest{})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer f.Close()

	supported, ok := f.(*frame.SupportedFrame)
	if !ok {
		t.Fatalf("expected SupportedFrame, got %T", f)
	}
	if got := supported.Options["CQL_VERSION"]; len(got) != 1 || got[0] != "3.0.0" {
		t.Errorf("unexpected options: %v", supported.Options)
	}
}

func TestNodeConnectionCeiling(t *testing.T) {
	config := testConfig()
	config.ConnectionsPerNode = 1

	node := NewNode("node-a", newPipeConnector(nil), config, nil)
	defer node.CloseAll()

	if _, err := node.OpenConnection(context.Background()); err != nil {
		t.Fatalf("first OpenConnection failed: %v", err)
	}
	if _, err := node.OpenConnection(context.Background()); err == nil {
		t.Error("expected error when exceeding the connection ceiling")
	}
}

func TestNodeDownRefusesConnections(t *testing.T) {
	node := NewNode("node-a", newPipeConnector(nil), testConfig(), nil)
	node.MarkDown()

	if node.IsUp() {
		t.Error("node should be down after MarkDown")
	}
	if _, err := node.OpenConnection(context.Background()); err == nil {
		t.Error("expected error when opening a connection to a down node")
	}

	node.MarkUp()
	if !node.IsUp() {
		t.Error("node should be up after MarkUp")
	}
}

func TestNodeStartupRejectedByServer(t *testing.T) {
	handle := func(opcode byte, body []byte) (byte, []byte) {
		buf := binary.BigEndian.AppendUint32(nil, 0x0100)
		buf = appendString(buf, "bad credentials")
		return byte(frame.OpError), buf
	}

	node := NewNode("node-a", newPipeConnector(handle), testConfig(), nil)
	if _, err := node.OpenConnection(context.Background()); err == nil {
		t.Fatal("expected handshake failure")
	}
	if node.ConnectionCount() != 0 {
		t.Errorf("failed handshake must not register a connection, got %d", node.ConnectionCount())
	}
}

func TestNodeLeastLoaded(t *testing.T) {
	node := NewNode("node-a", newPipeConnector(nil), testConfig(), nil)

	if node.LeastLoaded() != nil {
		t.Error("expected nil for a node without connections")
	}

	low := &Connection{endpoint: "node-a"}
	high := &Connection{endpoint: "node-a"}
	high.load.Add(10)
	low.load.Add(2)

	node.mu.Lock()
	node.conns = []*Connection{high, low}
	node.mu.Unlock()

	if got := node.LeastLoaded(); got != IConnection(low) {
		t.Errorf("expected the connection with load 2, got load %d", got.Load())
	}
	if node.Load() != 12 {
		t.Errorf("expected aggregate load 12, got %d", node.Load())
	}
}

// --------------------------------------------------------------------------
// Connection Tests
// --------------------------------------------------------------------------

func TestConnectionErrorResponse(t *testing.T) {
	handle := func(opcode byte, body []byte) (byte, []byte) {
		if frame.Opcode(opcode) == frame.OpQuery {
			return byte(frame.OpError), readTimeoutBody()
		}
		return defaultHandler(opcode, body)
	}

	node := NewNode("node-a", newPipeConnector(handle), testConfig(), nil)
	defer node.CloseAll()

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	f, err := conn.Send(context.Background(), &frame.QueryRequest{CQL: "SELECT now()", Consistency: frame.Quorum})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	defer f.Close()

	ef, ok := f.(*frame.ErrorFrame)
	if !ok {
		t.Fatalf("expected ErrorFrame, got %T", f)
	}
	var rte *frame.ReadTimeoutError
	if !errors.As(ef.Err, &rte) {
		t.Fatalf("expected ReadTimeoutError, got %v", ef.Err)
	}
	if rte.Consistency != frame.Quorum || rte.Received != 1 || rte.BlockFor != 2 || rte.DataPresent {
		t.Errorf("unexpected diagnostics: %+v", rte)
	}
}

func TestConnectionConcurrentSends(t *testing.T) {
	node := NewNode("node-a", newPipeConnector(nil), testConfig(), nil)
	defer node.CloseAll()

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := conn.Send(context.Background(), &frame.QueryRequest{CQL: "SELECT now()", Consistency: frame.One})
			if err != nil {
				errs <- err
				return
			}
			defer f.Close()
			if _, ok := f.(*frame.ResultFrame); !ok {
				errs <- errors.New("expected a result frame")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent send failed: %v", err)
	}
	if conn.Load() != 0 {
		t.Errorf("expected zero in-flight load after completion, got %d", conn.Load())
	}
}

func TestConnectionBrokenStreamMarksNodeDown(t *testing.T) {
	// the peer answers the handshake and then goes silent
	handle := func(opcode byte, body []byte) (byte, []byte) {
		return byte(frame.OpReady), readyBody
	}

	connector := newPipeConnector(handle)
	node := NewNode("node-a", connector, testConfig(), nil)

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	// kill the transport underneath the reader goroutine
	connector.lastServer().Close()

	deadline := time.After(2 * time.Second)
	for node.IsUp() {
		select {
		case <-deadline:
			t.Fatal("node was not marked down after the transport broke")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := conn.Send(context.Background(), &frame.OptionsRequest{}); err == nil {
		t.Error("expected error when sending on a broken connection")
	}
	if node.ConnectionCount() != 0 {
		t.Errorf("broken connection must leave the pool, got %d", node.ConnectionCount())
	}
}

func TestConnectionSendCancelled(t *testing.T) {
	// the peer answers the handshake and then goes silent
	handle := func(opcode byte, body []byte) (byte, []byte) {
		if frame.Opcode(opcode) == frame.OpStartup {
			return byte(frame.OpReady), readyBody
		}
		return opNoResponse, nil
	}

	node := NewNode("node-a", newPipeConnector(handle), testConfig(), nil)
	defer node.CloseAll()

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := conn.Send(ctx, &frame.OptionsRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if conn.Load() != 0 {
		t.Errorf("expected zero in-flight load after cancellation, got %d", conn.Load())
	}
}

func TestConnectionEventDispatch(t *testing.T) {
	handle := func(opcode byte, body []byte) (byte, []byte) {
		return byte(frame.OpReady), readyBody
	}

	connector := newPipeConnector(handle)
	node := NewNode("node-a", connector, testConfig(), nil)
	defer node.CloseAll()

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	events := make(chan *frame.EventFrame, 1)
	conn.OnEvent(func(ev *frame.EventFrame) {
		events <- ev
	})

	// server-initiated frames carry a negative stream id
	body := appendString(nil, "TOPOLOGY_CHANGE")
	body = appendString(body, "NEW_NODE")
	if err := writeResponse(connector.lastServer(), -1, byte(frame.OpEvent), body); err != nil {
		t.Fatalf("failed to push event: %v", err)
	}

	select {
	case ev := <-events:
		defer ev.Close()
		if ev.Type != "TOPOLOGY_CHANGE" {
			t.Errorf("expected TOPOLOGY_CHANGE event, got %q", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
}

func TestConnectionDoubleClose(t *testing.T) {
	node := NewNode("node-a", newPipeConnector(nil), testConfig(), nil)

	conn, err := node.OpenConnection(context.Background())
	if err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if node.ConnectionCount() != 0 {
		t.Errorf("closed connection must leave the pool, got %d", node.ConnectionCount())
	}
}

// --------------------------------------------------------------------------
// Ring Tests
// --------------------------------------------------------------------------

// staticLookup maps every partition key to a fixed endpoint list
type staticLookup struct {
	replicas []string
}

func (l *staticLookup) Replicas(partitionKey []byte) []string {
	return l.replicas
}

func TestRingAddNodeDeduplicates(t *testing.T) {
	ring := NewRing(nil)
	ring.AddNode(NewNode("node-a", nil, testConfig(), nil))
	ring.AddNode(NewNode("node-a", nil, testConfig(), nil))
	ring.AddNode(NewNode("node-b", nil, testConfig(), nil))

	if got := len(ring.Nodes()); got != 2 {
		t.Errorf("expected 2 nodes, got %d", got)
	}
}

func TestRingUpNodes(t *testing.T) {
	a := NewNode("node-a", nil, testConfig(), nil)
	b := NewNode("node-b", nil, testConfig(), nil)
	c := NewNode("node-c", nil, testConfig(), nil)

	ring := NewRing(nil)
	ring.AddNode(a)
	ring.AddNode(b)
	ring.AddNode(c)

	t.Run("filters down nodes", func(t *testing.T) {
		b.MarkDown()
		defer b.MarkUp()

		up := ring.UpNodes(nil)
		if len(up) != 2 {
			t.Fatalf("expected 2 up nodes, got %d", len(up))
		}
		if up[0].Endpoint() != "node-a" || up[1].Endpoint() != "node-c" {
			t.Errorf("expected insertion order a,c; got %s,%s", up[0].Endpoint(), up[1].Endpoint())
		}
	})

	t.Run("stable insertion order", func(t *testing.T) {
		up := ring.UpNodes(nil)
		if len(up) != 3 {
			t.Fatalf("expected 3 up nodes, got %d", len(up))
		}
		for i, want := range []string{"node-a", "node-b", "node-c"} {
			if up[i].Endpoint() != want {
				t.Errorf("position %d: expected %s, got %s", i, want, up[i].Endpoint())
			}
		}
	})
}

func TestRingReplicaNarrowing(t *testing.T) {
	a := NewNode("node-a", nil, testConfig(), nil)
	b := NewNode("node-b", nil, testConfig(), nil)

	lookup := &staticLookup{replicas: []string{"node-b"}}
	ring := NewRing(lookup)
	ring.AddNode(a)
	ring.AddNode(b)

	t.Run("narrows to owners", func(t *testing.T) {
		up := ring.UpNodes([]byte("key"))
		if len(up) != 1 || up[0].Endpoint() != "node-b" {
			t.Fatalf("expected only node-b, got %v", up)
		}
	})

	t.Run("nil key skips lookup", func(t *testing.T) {
		if got := len(ring.UpNodes(nil)); got != 2 {
			t.Errorf("expected all up nodes for a nil key, got %d", got)
		}
	})

	t.Run("downed owners fall back to all up nodes", func(t *testing.T) {
		b.MarkDown()
		defer b.MarkUp()

		up := ring.UpNodes([]byte("key"))
		if len(up) != 1 || up[0].Endpoint() != "node-a" {
			t.Fatalf("expected fallback to node-a, got %v", up)
		}
	})
}
