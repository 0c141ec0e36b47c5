package util

import (
	"fmt"
	"strings"

	"github.com/cqlwire/cqlwire/driver/cluster"
	"github.com/cqlwire/cqlwire/driver/cluster/tcp"
	"github.com/cqlwire/cqlwire/driver/cluster/unix"
	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the common driver connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The per-request timeout in seconds"))

	key = "contact-points"
	cmd.PersistentFlags().String(key, "localhost:9042", WrapString("The initial cluster endpoints, multiple endpoints can be specified as a comma-separated list"))

	key = "conn-per-node"
	cmd.PersistentFlags().Int(key, 2, WrapString("Maximum simultaneous connections per node (0 for unbounded)"))

	key = "max-connections"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum total connections across all nodes (0 for unbounded)"))

	key = "new-connection-threshold"
	cmd.PersistentFlags().Int(key, 40, WrapString("In-flight load below which an existing connection is reused instead of opening a new one"))

	key = "compression"
	cmd.PersistentFlags().String(key, "", WrapString("Frame body compression algorithm (snappy or none)"))

	key = "compression-min-size"
	cmd.PersistentFlags().Int(key, 64, WrapString("Body size in bytes below which compression is skipped"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time in seconds (only for tcp)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Driver log level (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("cqlwire")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads the driver configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		ContactPoints:          strings.Split(viper.GetString("contact-points"), ","),
		TimeoutSecond:          viper.GetInt("timeout"),
		NewConnectionThreshold: viper.GetInt("new-connection-threshold"),
		MaxConnections:         viper.GetInt("max-connections"),
		ConnectionsPerNode:     viper.GetInt("conn-per-node"),
		Compression:            viper.GetString("compression"),
		CompressionMinSize:     viper.GetInt("compression-min-size"),
		LogLevel:               viper.GetString("log-level"),
		Transport: common.TransportConf{
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("tcp-linger"),
			},
		},
	}

	return conf
}

// GetConnector creates the transport connector based on configuration
func GetConnector() (cluster.IConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewConnector(), nil
	case "unix":
		return unix.NewConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
