package cql

import (
	"github.com/cqlwire/cqlwire/cmd/util"
	"github.com/cqlwire/cqlwire/driver/client"
	"github.com/cqlwire/cqlwire/driver/common"
	"github.com/spf13/cobra"
)

var (
	driverClient *client.Client

	// CQLCommands represents the cql command group
	CQLCommands = &cobra.Command{
		Use:               "cql",
		Short:             "Talk to a CQL compatible cluster",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common driver flags to the cql command
	util.SetupClientFlags(CQLCommands)

	// Add subcommands
	CQLCommands.AddCommand(queryCmd)
	CQLCommands.AddCommand(prepareCmd)
	CQLCommands.AddCommand(supportedCmd)
	CQLCommands.AddCommand(eventsCmd)
	CQLCommands.AddCommand(perfTestCmd)
}

// setupClient creates the driver client and connects it to the cluster
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration
	config := util.GetClientConfig()
	common.InitLoggers(config.LogLevel)

	// Get the transport connector
	connector, err := util.GetConnector()
	if err != nil {
		return err
	}

	// Create and connect the client
	driverClient, err = client.NewClient(*config, connector, nil)
	if err != nil {
		return err
	}
	return driverClient.Connect(cmd.Context())
}
