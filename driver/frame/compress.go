package frame

import (
	"fmt"

	"github.com/golang/snappy"
)

// --------------------------------------------------------------------------
// Compressor Interface
// --------------------------------------------------------------------------

// Compressor compresses and decompresses frame bodies. Implementations must
// be safe for concurrent use.
type Compressor interface {
	// Name returns the algorithm name as announced during startup
	Name() string

	// Encode compresses the given body
	Encode(data []byte) ([]byte, error)

	// Decode decompresses the given body
	Decode(data []byte) ([]byte, error)
}

// NewCompressor creates a compressor by algorithm name. An empty name or
// "none" yields nil (no compression).
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "snappy":
		return SnappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// --------------------------------------------------------------------------
// Snappy Implementation
// --------------------------------------------------------------------------

// SnappyCompressor implements the Compressor interface with Google's snappy
type SnappyCompressor struct{}

func (s SnappyCompressor) Name() string {
	return "snappy"
}

func (s SnappyCompressor) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (s SnappyCompressor) Decode(data []byte) ([]byte, error) {
	// snappy provides the decoded length up front, so oversized bodies can
	// be rejected before allocating
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if n > maxFrameSize {
		return nil, fmt.Errorf("decompressed frame body too large: %d > %d", n, maxFrameSize)
	}
	return snappy.Decode(nil, data)
}
