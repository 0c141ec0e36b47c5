// Package cmd implements the command-line interface of the cqlwire driver.
// It provides a hierarchical command structure for interacting with a CQL
// compatible cluster from the shell.
//
// The package is organized into several subpackages:
//
//   - cql: Commands for talking to the cluster (query, prepare, options, events, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See cqlwire -help for a list of all commands.
package cmd
