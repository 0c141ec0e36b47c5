// Package common provides the configuration structures and logging utilities
// shared across the driver. It defines the client configuration consumed by
// the transport core and integrates the custom logger used by all driver
// packages.
//
// Key Components:
//
//   - ClientConfig: Configuration for the driver, controlling contact points,
//     timeouts, connection balancing thresholds, compression and low-level
//     socket tuning.
//
//   - Logger: Custom logging implementation built on Dragonboat's logging
//     system, providing consistent formatting across the driver.
package common
