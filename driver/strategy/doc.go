// Package strategy decides which cluster connection serves a request.
//
// A strategy consults the ring of up nodes and either reuses an existing
// multiplexed connection or opens a new one. The package defines the
// IConnectionStrategy interface so alternative policies (e.g. exclusive
// checkout) can be plugged in; the load-balanced implementation provided
// here prefers warmed connections below a configurable load threshold and
// spreads new connections across under-connected nodes.
package strategy
