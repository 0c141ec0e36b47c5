package cmd

import (
	"fmt"
	"os"

	"github.com/cqlwire/cqlwire/cmd/cql"
	"github.com/cqlwire/cqlwire/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cqlwire",
		Short: "CQL wire protocol driver",
		Long: fmt.Sprintf(`cqlwire (v%s)

A client driver for CQL compatible databases, speaking the binary wire
protocol with stream multiplexing, snappy compression and load-balanced
connection pooling.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cqlwire",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cqlwire v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(cql.CQLCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
