package piecekit

// Extras is the chained view over a piece's key-value store. Reads that miss
// locally fall back to the parent's store, recursively to the root; writes
// always land in the local store and never touch an ancestor. The view is
// live, not a snapshot: a value set by an ancestor's pre-load hook is visible
// to a child's handler the moment the hook has run.
type Extras struct {
	piece *Piece
}

// Get resolves key against the owning piece's store, then each ancestor in
// turn. The second return reports whether any store in the chain held the
// key.
func (e Extras) Get(key string) (any, bool) {
	for p := e.piece; p != nil; p = p.parentPiece() {
		if v, ok := p.GetExtra(key); ok {
			return v, true
		}
	}
	return nil, false
}

// Set writes key into the owning piece's local store. A local value shadows
// any inherited one for subsequent reads through this view.
func (e Extras) Set(key string, value any) {
	e.piece.SetExtra(key, value)
}

// Piece returns the piece this view is anchored at.
func (e Extras) Piece() *Piece { return e.piece }
