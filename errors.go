package piecekit

import (
	"fmt"
	"strings"
)

// DuplicateIdentityError reports two items sharing the same (kind, identity)
// pair. At registration time only the owning piece is known; at flatten time
// both conflicting piece paths are reported, since two pieces silently
// overwriting each other's command is a correctness bug the resolver must
// surface, not resolve.
type DuplicateIdentityError struct {
	Kind     Kind
	Identity string
	// FirstPath and SecondPath are name/index chains into the piece tree,
	// e.g. "root/moderation[1]". SecondPath is empty for a collision on a
	// single piece.
	FirstPath  string
	SecondPath string
}

func (e *DuplicateIdentityError) Error() string {
	if e.SecondPath == "" {
		return fmt.Sprintf("duplicate %s %q on piece %q", e.Kind, e.Identity, e.FirstPath)
	}
	return fmt.Sprintf("duplicate %s %q declared by both %q and %q",
		e.Kind, e.Identity, e.FirstPath, e.SecondPath)
}

// CycleError reports a child insertion that would break the tree shape:
// either the child is the piece itself or one of its ancestors, or the child
// is already owned by another piece. Children are owned exclusively; sharing
// a piece between two parents is as much of a structural fault as a cycle.
type CycleError struct {
	Piece  string
	Child  string
	Reason string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cannot add piece %q to %q: %s", e.Child, e.Piece, e.Reason)
}

// FrozenError reports a structural mutation attempted after the tree was
// flattened. The first successful flatten freezes every piece in the tree.
type FrozenError struct {
	Piece string
	Op    string
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("piece %q is frozen: %s after flatten is not allowed", e.Piece, e.Op)
}

// AttachStepError reports a single failed step of the attach plan. It wraps
// the host runtime's underlying error; by the time the caller sees it, all
// previously executed registrations of the same Load call have already been
// rolled back.
type AttachStepError struct {
	Step string
	Err  error
}

func (e *AttachStepError) Error() string {
	return fmt.Sprintf("attach step %s failed: %v", e.Step, e.Err)
}

func (e *AttachStepError) Unwrap() error { return e.Err }

// DetachAggregateError collects every failure encountered during a
// best-effort teardown. Detach never short-circuits: a host shutting down
// needs every removable resource released even if one removal misbehaves.
type DetachAggregateError struct {
	Errs []error
}

func (e *DetachAggregateError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("detach finished with %d failure(s):\n- %s",
		len(e.Errs), strings.Join(msgs, "\n- "))
}

// Unwrap returns the collected failures for errors.Is / errors.As traversal.
func (e *DetachAggregateError) Unwrap() []error { return e.Errs }
