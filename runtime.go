package piecekit

import "context"

// Runtime is the capability set piecekit consumes from the host application.
// Adapters translate these calls into whatever the host's native extension
// mechanism looks like; see the runtime/socketio package for a concrete one.
//
// Any error returned from a Runtime method is treated as a step failure:
// during attach it aborts the plan and triggers rollback, during detach it is
// collected into the aggregate error.
type Runtime interface {
	RegisterCommand(ctx context.Context, item *Item) error
	UnregisterCommand(ctx context.Context, identity string) error
	RegisterListener(ctx context.Context, item *Item) error
	UnregisterListener(ctx context.Context, identity string) error
}

// Hook is a lifecycle callback run during attach or detach. Hooks are awaited
// to completion in strict sequence; ordering is a correctness requirement,
// not a performance concern, so there is no parallel fan-out.
type Hook func(ctx context.Context) error

// HookPhase selects which of a piece's four hook lists a hook is appended to.
type HookPhase int

const (
	// PreLoad hooks run before any item of the tree is registered.
	PreLoad HookPhase = iota
	// PostLoad hooks run after every item of the tree is registered.
	PostLoad
	// PreUnload hooks run before any item of the tree is unregistered.
	PreUnload
	// PostUnload hooks run after every item of the tree is unregistered.
	PostUnload
)

// String returns the manifest-facing name of the phase.
func (p HookPhase) String() string {
	switch p {
	case PreLoad:
		return "pre_load"
	case PostLoad:
		return "post_load"
	case PreUnload:
		return "pre_unload"
	case PostUnload:
		return "post_unload"
	default:
		return "unknown"
	}
}
