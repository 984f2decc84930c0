// Package piecekit decomposes an event-driven application into independently
// authored units called pieces.
//
// The host runtime's native extension mechanism is a single, flat pair of
// setup/teardown functions. A Piece accumulates commands, event listeners,
// lifecycle hooks, periodic loops, and nested child pieces, then derives
// exactly that pair via Handlers. Flattening a piece tree produces one
// ordered attach plan and its reverse-order detach mirror, so a partially
// attached tree always unwinds cleanly.
//
// Registration happens during program startup and is not safe for concurrent
// use. The first successful flatten freezes the tree; later structural
// mutations return a FrozenError. Load and Unload on the same root are
// serialized, so hot-reloading hosts cannot interleave two lifecycles.
package piecekit
