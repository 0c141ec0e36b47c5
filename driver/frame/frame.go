package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("frame")

// --------------------------------------------------------------------------
// Wire constants
// --------------------------------------------------------------------------

const (
	protoVersion      byte = 0x02
	protoDirectionBit byte = 0x80

	versionRequest  = protoVersion
	versionResponse = protoVersion | protoDirectionBit

	headerSize = 8

	// FlagCompression marks a compressed frame body
	FlagCompression byte = 0x01
	// FlagTracing marks a frame whose body starts with a tracing UUID
	FlagTracing byte = 0x02

	// maxFrameSize bounds a single frame body; the protocol's own message
	// size limit
	maxFrameSize = 256 * 1024 * 1024
)

// --------------------------------------------------------------------------
// Header
// --------------------------------------------------------------------------

// Header is the fixed 8-byte frame envelope: version (with direction bit),
// flags, signed stream id, opcode and big-endian body length.
type Header struct {
	Version byte
	Flags   byte
	Stream  int8
	Opcode  Opcode
	Length  int32
}

func (h Header) String() string {
	return fmt.Sprintf("[header version=0x%02x flags=0x%02x stream=%d op=%s length=%d]",
		h.Version, h.Flags, h.Stream, h.Opcode, h.Length)
}

// --------------------------------------------------------------------------
// Frame Interface
// --------------------------------------------------------------------------

// Frame is one complete inbound protocol message. Concrete types are
// allocated by opcode in FromStream; the set is closed.
type Frame interface {
	// Header returns the decoded frame envelope
	Header() Header

	// TracingID returns the server-side trace correlation id, or nil if the
	// tracing flag was not set
	TracingID() *uuid.UUID

	// Done is closed once the frame body has been fully drained from the
	// underlying stream
	Done() <-chan struct{}

	// Drain discards any unread body bytes so the underlying stream can be
	// reused for the next frame
	Drain() error

	// Close disposes the frame and its reader. Idempotent.
	Close()

	base() *baseFrame
	parseBody(fr *FrameReader) error
}

// baseFrame carries the envelope state shared by all concrete frames
type baseFrame struct {
	header    Header
	tracingID *uuid.UUID
	reader    *FrameReader
	closed    atomic.Bool
}

func (f *baseFrame) Header() Header        { return f.header }
func (f *baseFrame) TracingID() *uuid.UUID { return f.tracingID }
func (f *baseFrame) Done() <-chan struct{} { return f.reader.Done() }
func (f *baseFrame) Drain() error          { return f.reader.Drain() }
func (f *baseFrame) base() *baseFrame      { return f }

// Close disposes the frame. Safe to call multiple times, including
// concurrently; only the first call releases the reader.
func (f *baseFrame) Close() {
	if f.closed.CompareAndSwap(false, true) {
		f.reader.Close()
	}
}

// --------------------------------------------------------------------------
// Concrete Inbound Frames
// --------------------------------------------------------------------------

// ReadyFrame signals that the connection is ready for queries.
type ReadyFrame struct {
	baseFrame
}

func (f *ReadyFrame) parseBody(*FrameReader) error { return nil }

// AuthenticateFrame requests SASL authentication with the named
// authenticator.
type AuthenticateFrame struct {
	baseFrame
	Authenticator string
}

func (f *AuthenticateFrame) parseBody(fr *FrameReader) error {
	var err error
	f.Authenticator, err = fr.ReadString()
	return err
}

// SupportedFrame carries the startup options the server supports.
type SupportedFrame struct {
	baseFrame
	Options map[string][]string
}

func (f *SupportedFrame) parseBody(fr *FrameReader) error {
	var err error
	f.Options, err = fr.ReadStringMultiMap()
	return err
}

// Result kinds as reported in the first int of a RESULT body.
const (
	ResultKindVoid         int32 = 1
	ResultKindRows         int32 = 2
	ResultKindSetKeyspace  int32 = 3
	ResultKindPrepared     int32 = 4
	ResultKindSchemaChange int32 = 5
)

// ResultFrame carries a query result. The payload beyond the result kind is
// kept raw; row decoding is owned by the codec layer outside this core.
type ResultFrame struct {
	baseFrame
	Kind int32
	Body []byte
}

func (f *ResultFrame) parseBody(fr *FrameReader) error {
	var err error
	if f.Kind, err = fr.ReadInt(); err != nil {
		return err
	}
	f.Body, err = fr.ReadRawRemaining()
	return err
}

// EventFrame carries a server push event. The payload beyond the event type
// is kept raw.
type EventFrame struct {
	baseFrame
	Type string
	Body []byte
}

func (f *EventFrame) parseBody(fr *FrameReader) error {
	var err error
	if f.Type, err = fr.ReadString(); err != nil {
		return err
	}
	f.Body, err = fr.ReadRawRemaining()
	return err
}

// ErrorFrame carries a server-side error. Err holds the typed variant from
// the protocol error taxonomy.
type ErrorFrame struct {
	baseFrame
	Code    ErrorCode
	Message string
	Err     error
}

func (f *ErrorFrame) parseBody(fr *FrameReader) error {
	code, err := fr.ReadInt()
	if err != nil {
		return err
	}
	msg, err := fr.ReadString()
	if err != nil {
		return err
	}
	f.Code = ErrorCode(code)
	f.Message = msg
	f.Err, err = parseErrorDetail(fr, f.Code, msg, f.tracingID)
	return err
}

// --------------------------------------------------------------------------
// Inbound Decoding
// --------------------------------------------------------------------------

// newFrameForOpcode allocates the concrete frame type for a response opcode.
// The dispatch table is closed; any other value is a wire-format violation.
func newFrameForOpcode(h Header) (Frame, error) {
	switch h.Opcode {
	case OpError:
		return &ErrorFrame{baseFrame: baseFrame{header: h}}, nil
	case OpReady:
		return &ReadyFrame{baseFrame: baseFrame{header: h}}, nil
	case OpAuthenticate:
		return &AuthenticateFrame{baseFrame: baseFrame{header: h}}, nil
	case OpSupported:
		return &SupportedFrame{baseFrame: baseFrame{header: h}}, nil
	case OpResult:
		return &ResultFrame{baseFrame: baseFrame{header: h}}, nil
	case OpEvent:
		return &EventFrame{baseFrame: baseFrame{header: h}}, nil
	default:
		return nil, fmt.Errorf("unknown opcode in frame header: %s", h.Opcode)
	}
}

// FromStream reads exactly one frame from the stream: the fixed 8-byte
// header (accumulating across short reads), then the body bounded to the
// header's length. The body is eagerly decompressed when the compression
// flag is set and the tracing id is read when the tracing flag is set,
// before the subtype-specific body initialization runs.
//
// Errors from FromStream are transport-fatal for the stream: a partial
// header or unrecognized opcode cannot be attributed to an in-flight stream
// id, so the connection must be considered broken.
func FromStream(r io.Reader, compressor Compressor) (Frame, error) {
	var p [headerSize]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %v", err)
	}

	h := Header{
		Version: p[0],
		Flags:   p[1],
		Stream:  int8(p[2]),
		Opcode:  Opcode(p[3]),
		Length:  int32(binary.BigEndian.Uint32(p[4:8])),
	}

	if h.Version&protoDirectionBit == 0 {
		return nil, fmt.Errorf("received a request frame from the server: %s", h)
	}
	if h.Version != versionResponse {
		return nil, fmt.Errorf("unsupported protocol version 0x%02x", h.Version)
	}
	if h.Length < 0 || h.Length > maxFrameSize {
		return nil, fmt.Errorf("invalid frame body length %d", h.Length)
	}

	f, err := newFrameForOpcode(h)
	if err != nil {
		return nil, err
	}

	fr := NewFrameReader(r, int(h.Length))
	f.base().reader = fr

	if h.Flags&FlagCompression != 0 {
		if err := fr.Decompress(compressor); err != nil {
			fr.Close()
			return nil, err
		}
	}

	if h.Flags&FlagTracing != 0 {
		id, err := fr.ReadUUID()
		if err != nil {
			fr.Close()
			return nil, fmt.Errorf("failed to read tracing id: %v", err)
		}
		f.base().tracingID = &id
	}

	if err := f.parseBody(fr); err != nil {
		fr.Close()
		return nil, fmt.Errorf("failed to decode %s body: %v", h.Opcode, err)
	}

	return f, nil
}
