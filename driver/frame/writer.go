package frame

import (
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Request Interface
// --------------------------------------------------------------------------

// Request is an outbound frame: it names its opcode and writes its body.
type Request interface {
	// Opcode returns the message kind of the request
	Opcode() Opcode

	// WriteBody serializes the request payload
	WriteBody(w *BodyWriter) error
}

// Encode serializes a request into a complete wire frame: the header is
// written with a zero length placeholder, the body appended, optionally
// compressed, and the length field patched in place with the true body byte
// count. The returned buffer is header-length-consistent and ready for
// transmission.
//
// Compression is applied only when a compressor is configured and the body
// is at least minCompressSize bytes; the compression flag bit reflects
// whether compression was actually applied. Pass tracing=true to request a
// server-side trace for this frame.
func Encode(req Request, stream int8, compressor Compressor, minCompressSize int, tracing bool) ([]byte, error) {
	var flags byte
	if tracing {
		flags |= FlagTracing
	}

	w := &BodyWriter{buf: make([]byte, 0, 256)}
	w.buf = append(w.buf,
		versionRequest,
		flags,
		byte(stream),
		byte(req.Opcode()),
		// length placeholder, patched below
		0, 0, 0, 0,
	)

	if err := req.WriteBody(w); err != nil {
		return nil, err
	}

	if compressor != nil && len(w.buf)-headerSize >= minCompressSize {
		compressed, err := compressor.Encode(w.buf[headerSize:])
		if err != nil {
			return nil, fmt.Errorf("failed to compress frame body: %v", err)
		}
		w.buf = append(w.buf[:headerSize], compressed...)
		w.buf[1] |= FlagCompression
	}

	bodyLen := len(w.buf) - headerSize
	if bodyLen > maxFrameSize {
		return nil, fmt.Errorf("frame body length %d exceeds maximum %d", bodyLen, maxFrameSize)
	}
	binary.BigEndian.PutUint32(w.buf[4:8], uint32(bodyLen))

	return w.buf, nil
}

// --------------------------------------------------------------------------
// BodyWriter
// --------------------------------------------------------------------------

// BodyWriter appends the protocol's primitive encodings to a frame buffer.
type BodyWriter struct {
	buf []byte
}

// WriteShort appends an unsigned big-endian 16-bit integer.
func (w *BodyWriter) WriteShort(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// WriteInt appends a signed big-endian 32-bit integer.
func (w *BodyWriter) WriteInt(v int32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteString appends a short-length-prefixed UTF-8 string.
func (w *BodyWriter) WriteString(s string) {
	w.WriteShort(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteLongString appends an int-length-prefixed UTF-8 string.
func (w *BodyWriter) WriteLongString(s string) {
	w.WriteInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes appends an int-length-prefixed byte block; nil encodes as
// length -1.
func (w *BodyWriter) WriteBytes(p []byte) {
	if p == nil {
		w.WriteInt(-1)
		return
	}
	w.WriteInt(int32(len(p)))
	w.buf = append(w.buf, p...)
}

// WriteShortBytes appends a short-length-prefixed byte block.
func (w *BodyWriter) WriteShortBytes(p []byte) {
	w.WriteShort(uint16(len(p)))
	w.buf = append(w.buf, p...)
}

// WriteConsistency appends a consistency level.
func (w *BodyWriter) WriteConsistency(c Consistency) {
	w.WriteShort(uint16(c))
}

// WriteStringList appends a short-length-prefixed list of strings.
func (w *BodyWriter) WriteStringList(list []string) {
	w.WriteShort(uint16(len(list)))
	for _, s := range list {
		w.WriteString(s)
	}
}

// WriteStringMap appends a short-length-prefixed map of string to string.
func (w *BodyWriter) WriteStringMap(m map[string]string) {
	w.WriteShort(uint16(len(m)))
	for k, v := range m {
		w.WriteString(k)
		w.WriteString(v)
	}
}

// --------------------------------------------------------------------------
// Outbound Request Types
// --------------------------------------------------------------------------

// cqlVersion is the CQL version announced during startup
const cqlVersion = "3.0.0"

// StartupRequest initializes a fresh connection. Compression, if any, names
// the algorithm negotiated for all subsequent frames; the startup frame
// itself is never compressed.
type StartupRequest struct {
	Compression string
}

func (r *StartupRequest) Opcode() Opcode { return OpStartup }

func (r *StartupRequest) WriteBody(w *BodyWriter) error {
	opts := map[string]string{"CQL_VERSION": cqlVersion}
	if r.Compression != "" {
		opts["COMPRESSION"] = r.Compression
	}
	w.WriteStringMap(opts)
	return nil
}

// OptionsRequest asks the server which startup options it supports.
type OptionsRequest struct{}

func (r *OptionsRequest) Opcode() Opcode              { return OpOptions }
func (r *OptionsRequest) WriteBody(*BodyWriter) error { return nil }

// QueryRequest executes a CQL query string at the given consistency.
type QueryRequest struct {
	CQL         string
	Consistency Consistency
}

func (r *QueryRequest) Opcode() Opcode { return OpQuery }

func (r *QueryRequest) WriteBody(w *BodyWriter) error {
	if r.CQL == "" {
		return fmt.Errorf("empty query string")
	}
	w.WriteLongString(r.CQL)
	w.WriteConsistency(r.Consistency)
	return nil
}

// PrepareRequest prepares a CQL query string for later execution.
type PrepareRequest struct {
	CQL string
}

func (r *PrepareRequest) Opcode() Opcode { return OpPrepare }

func (r *PrepareRequest) WriteBody(w *BodyWriter) error {
	if r.CQL == "" {
		return fmt.Errorf("empty query string")
	}
	w.WriteLongString(r.CQL)
	return nil
}

// ExecuteRequest executes a previously prepared statement.
type ExecuteRequest struct {
	StatementID []byte
	Values      [][]byte
	Consistency Consistency
}

func (r *ExecuteRequest) Opcode() Opcode { return OpExecute }

func (r *ExecuteRequest) WriteBody(w *BodyWriter) error {
	if len(r.StatementID) == 0 {
		return fmt.Errorf("empty prepared statement id")
	}
	w.WriteShortBytes(r.StatementID)
	w.WriteShort(uint16(len(r.Values)))
	for _, v := range r.Values {
		w.WriteBytes(v)
	}
	w.WriteConsistency(r.Consistency)
	return nil
}

// RegisterRequest subscribes the connection to server push events.
type RegisterRequest struct {
	Events []string
}

func (r *RegisterRequest) Opcode() Opcode { return OpRegister }

func (r *RegisterRequest) WriteBody(w *BodyWriter) error {
	if len(r.Events) == 0 {
		return fmt.Errorf("no event types to register")
	}
	w.WriteStringList(r.Events)
	return nil
}
