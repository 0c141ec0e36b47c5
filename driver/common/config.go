package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Socket level configuration structs
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings shared by all stream transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific tuning options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// TransportConf bundles the transport level settings of a client
type TransportConf struct {
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters for the driver.
type ClientConfig struct {
	// ContactPoints are the initial cluster endpoints the driver connects to
	ContactPoints []string

	// TimeoutSecond is the per-request timeout (0 means no timeout)
	TimeoutSecond int

	// NewConnectionThreshold is the in-flight load below which an existing
	// connection is reused instead of opening a new one
	NewConnectionThreshold int

	// MaxConnections caps the total number of connections across all nodes.
	// Zero or negative means unbounded.
	MaxConnections int

	// ConnectionsPerNode caps the number of connections a single node may
	// own. Zero or negative means unbounded.
	ConnectionsPerNode int

	// Compression selects the frame body compressor ("snappy" or "none")
	Compression string

	// CompressionMinSize is the body size in bytes below which compression
	// is skipped even when enabled
	CompressionMinSize int

	// Transport holds the socket level settings
	Transport TransportConf

	// LogLevel configures the driver loggers (debug, info, warn, error)
	LogLevel string
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
	}

	// General client settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("New Connection Threshold", strconv.Itoa(c.NewConnectionThreshold))
	if c.MaxConnections > 0 {
		addField("Max Connections", strconv.Itoa(c.MaxConnections))
	} else {
		addField("Max Connections", "unbounded")
	}
	if c.ConnectionsPerNode > 0 {
		addField("Connections Per Node", strconv.Itoa(c.ConnectionsPerNode))
	} else {
		addField("Connections Per Node", "unbounded")
	}

	// Compression
	addSection("Compression")
	if c.Compression == "" {
		addField("Algorithm", "none")
	} else {
		addField("Algorithm", c.Compression)
		addField("Min Body Size", fmt.Sprintf("%d bytes", c.CompressionMinSize))
	}

	// Contact points
	addSection("Contact Points")
	for i, endpoint := range c.ContactPoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
