package cql

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cqlwire/cqlwire/cmd/util"
	"github.com/cqlwire/cqlwire/driver/frame"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	queryCmd = &cobra.Command{
		Use:   "query [cql]",
		Short: "Executes a CQL query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer driverClient.Close()

			consistency, err := frame.ParseConsistency(strings.ToUpper(viper.GetString("consistency")))
			if err != nil {
				return err
			}

			result, err := driverClient.Query(cmd.Context(), nil, args[0], consistency)
			if err != nil {
				return err
			}
			defer result.Close()

			switch result.Kind {
			case frame.ResultKindVoid:
				fmt.Println("ok")
			case frame.ResultKindRows:
				fmt.Printf("ok, %d bytes of row data\n", len(result.Body))
			case frame.ResultKindSetKeyspace:
				fmt.Println("ok, keyspace changed")
			case frame.ResultKindSchemaChange:
				fmt.Println("ok, schema changed")
			default:
				fmt.Printf("ok, result kind %d\n", result.Kind)
			}
			return nil
		},
	}
	prepareCmd = &cobra.Command{
		Use:   "prepare [cql]",
		Short: "Prepares a CQL query and prints the statement id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer driverClient.Close()

			id, err := driverClient.Prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("statement id: %x\n", id)
			return nil
		},
	}
	supportedCmd = &cobra.Command{
		Use:   "supported",
		Short: "Prints the startup options the cluster supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer driverClient.Close()

			options, err := driverClient.Options(cmd.Context())
			if err != nil {
				return err
			}
			for key, values := range options {
				fmt.Printf("%s:\n", key)
				for _, v := range values {
					fmt.Printf("  %s\n", v)
				}
			}
			return nil
		},
	}
	eventsCmd = &cobra.Command{
		Use:   "events [type ...]",
		Short: "Subscribes to server push events and prints them until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer driverClient.Close()

			err := driverClient.Register(cmd.Context(), args, func(ev *frame.EventFrame) {
				fmt.Printf("%s (%d bytes payload)\n", ev.Type, len(ev.Body))
				ev.Close()
			})
			if err != nil {
				return err
			}

			fmt.Println("listening for events, press ctrl-c to stop...")
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
)

func init() {
	key := "consistency"
	queryCmd.Flags().String(key, "quorum", util.WrapString("Consistency level for the query (any, one, two, three, quorum, all, local_quorum, each_quorum, local_one)"))
}
