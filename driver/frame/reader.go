package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrReaderClosed is returned for reads on a disposed FrameReader
	ErrReaderClosed = errors.New("frame reader is closed")
)

// --------------------------------------------------------------------------
// FrameReader
// --------------------------------------------------------------------------

// FrameReader is a bounded, single-use window over the connection stream.
// It knows the exact remaining body length of one frame and refuses to read
// past it. Once the compression flag has been handled via Decompress the
// window is backed by a materialized buffer instead of the stream.
//
// The window cannot be rebound to a different frame; once closed, reads fail.
type FrameReader struct {
	src       io.Reader
	remaining int

	// materialized body, non-nil only after Decompress
	buf []byte
	pos int

	closed   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewFrameReader creates a reader bounded to length body bytes of the
// underlying stream.
func NewFrameReader(src io.Reader, length int) *FrameReader {
	fr := &FrameReader{
		src:  src,
		done: make(chan struct{}),
	}
	fr.remaining = length
	if length == 0 {
		fr.signalDone()
	}
	return fr
}

// Remaining returns the number of body bytes not yet consumed.
func (fr *FrameReader) Remaining() int {
	return fr.remaining
}

// Done returns a channel that is closed once the frame body has been fully
// drained (or the reader disposed). Consumers that hand a frame onward
// before its body is necessarily consumed wait on this before reusing the
// underlying connection.
func (fr *FrameReader) Done() <-chan struct{} {
	return fr.done
}

// Close disposes the reader. It is idempotent and safe to call concurrently.
// Waiters on Done are released.
func (fr *FrameReader) Close() {
	if fr.closed.CompareAndSwap(false, true) {
		fr.signalDone()
	}
}

func (fr *FrameReader) signalDone() {
	fr.doneOnce.Do(func() { close(fr.done) })
}

// Decompress replaces the remaining body bytes with their decompressed form,
// materializing the whole body in memory. Must be called before any body
// field is read.
func (fr *FrameReader) Decompress(c Compressor) error {
	if c == nil {
		return errors.New("compressed frame body but no compressor configured")
	}
	raw := make([]byte, fr.remaining)
	if err := fr.read(raw); err != nil {
		return err
	}
	decoded, err := c.Decode(raw)
	if err != nil {
		return fmt.Errorf("failed to decompress frame body: %v", err)
	}
	fr.buf = decoded
	fr.pos = 0
	fr.remaining = len(decoded)
	if fr.remaining == 0 {
		fr.signalDone()
	}
	return nil
}

// read fills p from the bounded window, failing if p exceeds the remaining
// body bytes.
func (fr *FrameReader) read(p []byte) error {
	if fr.closed.Load() {
		return ErrReaderClosed
	}
	if len(p) > fr.remaining {
		return fmt.Errorf("read of %d bytes exceeds remaining frame body (%d bytes)", len(p), fr.remaining)
	}
	if fr.buf != nil {
		copy(p, fr.buf[fr.pos:fr.pos+len(p)])
		fr.pos += len(p)
	} else if len(p) > 0 {
		if _, err := io.ReadFull(fr.src, p); err != nil {
			return fmt.Errorf("failed to read frame body: %v", err)
		}
	}
	fr.remaining -= len(p)
	if fr.remaining == 0 {
		fr.signalDone()
	}
	return nil
}

// Skip discards n body bytes.
func (fr *FrameReader) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("cannot skip %d bytes", n)
	}
	p := make([]byte, n)
	return fr.read(p)
}

// Drain discards all remaining body bytes. The underlying stream is safe to
// reuse for the next frame afterwards.
func (fr *FrameReader) Drain() error {
	return fr.Skip(fr.remaining)
}

// --------------------------------------------------------------------------
// Primitive Decoders
// --------------------------------------------------------------------------

// ReadByte reads a single body byte.
func (fr *FrameReader) ReadByte() (byte, error) {
	var p [1]byte
	if err := fr.read(p[:]); err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadShort reads an unsigned big-endian 16-bit integer.
func (fr *FrameReader) ReadShort() (uint16, error) {
	var p [2]byte
	if err := fr.read(p[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p[:]), nil
}

// ReadInt reads a signed big-endian 32-bit integer.
func (fr *FrameReader) ReadInt() (int32, error) {
	var p [4]byte
	if err := fr.read(p[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p[:])), nil
}

// ReadLong reads a signed big-endian 64-bit integer.
func (fr *FrameReader) ReadLong() (int64, error) {
	var p [8]byte
	if err := fr.read(p[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p[:])), nil
}

// ReadString reads a short-length-prefixed UTF-8 string.
func (fr *FrameReader) ReadString() (string, error) {
	n, err := fr.ReadShort()
	if err != nil {
		return "", err
	}
	p := make([]byte, n)
	if err := fr.read(p); err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadLongString reads an int-length-prefixed UTF-8 string.
func (fr *FrameReader) ReadLongString() (string, error) {
	n, err := fr.ReadInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("negative long string length: %d", n)
	}
	p := make([]byte, n)
	if err := fr.read(p); err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadBytes reads an int-length-prefixed byte block. A negative length
// yields nil.
func (fr *FrameReader) ReadBytes() ([]byte, error) {
	n, err := fr.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	p := make([]byte, n)
	if err := fr.read(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadShortBytes reads a short-length-prefixed byte block.
func (fr *FrameReader) ReadShortBytes() ([]byte, error) {
	n, err := fr.ReadShort()
	if err != nil {
		return nil, err
	}
	p := make([]byte, n)
	if err := fr.read(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadUUID reads a 128-bit identifier.
func (fr *FrameReader) ReadUUID() (uuid.UUID, error) {
	var p [16]byte
	if err := fr.read(p[:]); err != nil {
		return uuid.UUID{}, err
	}
	return uuid.FromBytes(p[:])
}

// ReadConsistency reads a consistency level.
func (fr *FrameReader) ReadConsistency() (Consistency, error) {
	n, err := fr.ReadShort()
	if err != nil {
		return 0, err
	}
	return Consistency(n), nil
}

// ReadStringList reads a short-length-prefixed list of strings.
func (fr *FrameReader) ReadStringList() ([]string, error) {
	n, err := fr.ReadShort()
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := fr.ReadString()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

// ReadStringMultiMap reads a short-length-prefixed map of string to string
// list (the SUPPORTED options payload).
func (fr *FrameReader) ReadStringMultiMap() (map[string][]string, error) {
	n, err := fr.ReadShort()
	if err != nil {
		return nil, err
	}
	m := make(map[string][]string, n)
	for i := 0; i < int(n); i++ {
		k, err := fr.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := fr.ReadStringList()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// ReadRawRemaining reads all remaining body bytes without interpretation.
func (fr *FrameReader) ReadRawRemaining() ([]byte, error) {
	p := make([]byte, fr.remaining)
	if err := fr.read(p); err != nil {
		return nil, err
	}
	return p, nil
}
