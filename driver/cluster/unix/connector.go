// Package unix implements the Unix domain socket connector for the driver's
// cluster layer. It is intended for co-located deployments (sidecar proxies,
// local test clusters) where the node listens on a filesystem socket instead
// of a TCP port. The endpoint is the socket path.
package unix

import (
	"net"

	"github.com/cqlwire/cqlwire/driver/cluster"
	"github.com/cqlwire/cqlwire/driver/common"
)

// connector implements the cluster.IConnector interface for Unix domain sockets
type connector struct{}

// NewConnector creates a new Unix domain socket connector
func NewConnector() cluster.IConnector {
	return &connector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see cluster.IConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "unix"
}

func (c *connector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

// UpgradeConnection applies socket buffer tuning to a Unix domain socket
// connection; the TCP specific options do not apply here
func (c *connector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil // Not a Unix socket connection, nothing to upgrade
	}

	// Set socket write buffer size if configured
	if config.Transport.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(config.Transport.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if config.Transport.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(config.Transport.ReadBufferSize); err != nil {
			return err
		}
	}

	return nil
}
