// Package xgrid provides the packet relay engine of an xgrid mesh.
package xgrid

// An xgrid mesh is built from nodes connected by point-to-point byte links
// (typically UARTs). Every node runs the same Engine: packets are flooded to
// all neighbors except the one they came from, bounded by a hop budget
// (radius), and duplicates are suppressed with a small identity cache so the
// flood terminates.
//
// The same protocol distributes firmware: a node holding a newer build pushes
// its image one flash page at a time to out-of-date neighbors, which verify
// the staged image CRC before installing it.
//
// The Engine never blocks and never allocates on the packet path. All packet
// bytes live in a fixed Pool of slots shared by frames being received and
// frames being transmitted. Tick is expected to be called at a steady rate
// by an external scheduler, and all waiting is counted in ticks.
