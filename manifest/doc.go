// Package manifest loads HCL piece manifests and checks them against a
// constructed piece tree.
//
// A manifest is the public-facing declaration of a piece tree's shape: piece
// names, the commands and listeners each piece exposes, its loops, its extras
// defaults, and its nested pieces. The Go code registers the actual handlers;
// Validate performs a strict parity check between the two, so a drifted
// manifest is caught at startup instead of surfacing as a missing command at
// runtime.
package manifest
