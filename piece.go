package piecekit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultName is used for pieces constructed without an explicit name. Names
// are purely diagnostic; identity resolution never looks at them.
const DefaultName = "piece"

// PieceMetadata carries the diagnostic name and the initial extras of a
// piece.
type PieceMetadata struct {
	// Name is the piece's human-readable name, used in logs and error paths.
	Name string
	// Extras seeds the piece's key-value store.
	Extras map[string]any
}

// Piece is a composable unit bundling commands, listeners, lifecycle hooks,
// periodic loops, shared state, and child pieces. A piece is created empty,
// mutated by registration calls during startup, and frozen by the first
// successful flatten.
//
// Registration methods are not safe for concurrent use; they are meant to
// run before the host starts dispatching events. Load and Unload are safe to
// call from the host's dispatch context and are serialized per root.
type Piece struct {
	meta   PieceMetadata
	logger *slog.Logger

	// mu guards the structural state below plus the frozen flag and the
	// cached plan.
	mu       sync.Mutex
	frozen   bool
	plan     *Plan
	items    []*Item
	itemSet  map[itemKey]struct{}
	hooks    map[HookPhase][]Hook
	loops    []*Loop
	children []*Piece

	// parent and childIndex are set when this piece is adopted; they drive
	// extras inheritance and diagnostic paths.
	parent     *Piece
	childIndex int

	extrasMu sync.RWMutex
	extras   map[string]any

	// lifecycleMu serializes Load/Unload pairs on this root, so a
	// hot-reloading host can never interleave two lifecycles.
	lifecycleMu sync.Mutex
}

// Option configures a Piece at construction time.
type Option func(*Piece)

// WithName sets the piece's diagnostic name.
func WithName(name string) Option {
	return func(p *Piece) { p.meta.Name = name }
}

// WithLogger sets the logger used for this piece's lifecycle events and
// passed down to its hooks and loops. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Piece) { p.logger = logger }
}

// WithExtras seeds the piece's extras store.
func WithExtras(extras map[string]any) Option {
	return func(p *Piece) {
		for k, v := range extras {
			p.extras[k] = v
		}
	}
}

// New creates an empty piece.
func New(opts ...Option) *Piece {
	p := &Piece{
		meta:    PieceMetadata{Name: DefaultName},
		itemSet: make(map[itemKey]struct{}),
		hooks:   make(map[HookPhase][]Hook),
		extras:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.meta.Extras = p.extras
	return p
}

// NewWithMetadata creates a piece from pre-existing metadata.
func NewWithMetadata(meta PieceMetadata) *Piece {
	opts := []Option{WithExtras(meta.Extras)}
	if meta.Name != "" {
		opts = append(opts, WithName(meta.Name))
	}
	return New(opts...)
}

// Name returns the piece's diagnostic name.
func (p *Piece) Name() string { return p.meta.Name }

// Metadata returns the piece's metadata. The Extras map is the live store,
// matching GetExtra/SetExtra.
func (p *Piece) Metadata() PieceMetadata { return p.meta }

// Logger returns the piece's logger.
func (p *Piece) Logger() *slog.Logger { return p.logger }

// AddItem registers a command or listener on this piece. It fails with
// DuplicateIdentityError if an item with the same (kind, identity) already
// exists directly on this piece; collisions across the tree are detected at
// flatten time, which keeps per-piece authoring order-independent.
func (p *Piece) AddItem(item *Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return &FrozenError{Piece: p.meta.Name, Op: "AddItem"}
	}
	key := item.key()
	if _, exists := p.itemSet[key]; exists {
		return &DuplicateIdentityError{
			Kind:      item.kind,
			Identity:  item.identity,
			FirstPath: p.path(),
		}
	}
	item.metadata[MetadataKeyPiece] = p
	p.itemSet[key] = struct{}{}
	p.items = append(p.items, item)
	p.logger.Debug("Registered item on piece.", "piece", p.meta.Name, "kind", item.kind.String(), "identity", item.identity)
	return nil
}

// AddCommand creates and registers a command item, returning it for further
// metadata chaining.
func (p *Piece) AddCommand(identity string, handler any) (*Item, error) {
	item := NewCommand(identity, handler)
	if err := p.AddItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

// AddListener creates and registers a listener item for the given event.
func (p *Piece) AddListener(event string, handler any) (*Item, error) {
	item := NewListener(event, handler)
	if err := p.AddItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

// AddHook appends a lifecycle hook to the given phase. Hooks have no
// uniqueness constraint and run in declared order (reversed across the tree
// for the unload phases, see Flatten).
func (p *Piece) AddHook(phase HookPhase, hook Hook) error {
	switch phase {
	case PreLoad, PostLoad, PreUnload, PostUnload:
	default:
		return fmt.Errorf("unknown hook phase %d", int(phase))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return &FrozenError{Piece: p.meta.Name, Op: "AddHook"}
	}
	p.hooks[phase] = append(p.hooks[phase], hook)
	return nil
}

// AddLoop registers a periodic task started on attach and cancelled, LIFO,
// on detach.
func (p *Piece) AddLoop(name string, every time.Duration, fn LoopFunc) error {
	if every <= 0 {
		return fmt.Errorf("loop %q: interval must be positive, got %s", name, every)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return &FrozenError{Piece: p.meta.Name, Op: "AddLoop"}
	}
	p.loops = append(p.loops, &Loop{name: name, every: every, fn: fn})
	return nil
}

// AddChild appends a child piece. The child is owned exclusively: it fails
// with CycleError if the child is this piece or one of its ancestors, or if
// the child already has a parent.
func (p *Piece) AddChild(child *Piece) error {
	if child == p {
		return &CycleError{
			Piece:  p.meta.Name,
			Child:  child.meta.Name,
			Reason: "child is an ancestor of this piece",
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frozen {
		return &FrozenError{Piece: p.meta.Name, Op: "AddChild"}
	}
	child.mu.Lock()
	defer child.mu.Unlock()
	if child.frozen {
		return &FrozenError{Piece: child.meta.Name, Op: "AddChild"}
	}
	if child.parent != nil {
		return &CycleError{
			Piece:  p.meta.Name,
			Child:  child.meta.Name,
			Reason: fmt.Sprintf("already owned by piece %q", child.parent.meta.Name),
		}
	}
	for anc := p; anc != nil; anc = anc.parent {
		if anc == child {
			return &CycleError{
				Piece:  p.meta.Name,
				Child:  child.meta.Name,
				Reason: "child is an ancestor of this piece",
			}
		}
	}
	child.parent = p
	child.childIndex = len(p.children)
	p.children = append(p.children, child)
	p.logger.Debug("Adopted child piece.", "piece", p.meta.Name, "child", child.meta.Name)
	return nil
}

// SetExtra writes a key into this piece's own store. Extras stay writable
// after flatten: they are runtime state, not tree structure, and pre-load
// hooks routinely populate them during attach.
func (p *Piece) SetExtra(key string, value any) {
	p.extrasMu.Lock()
	defer p.extrasMu.Unlock()
	p.extras[key] = value
}

// GetExtra reads a key from this piece's own store only. It does not see
// ancestor or descendant extras; use Extras for the inherited view.
func (p *Piece) GetExtra(key string) (any, bool) {
	p.extrasMu.RLock()
	defer p.extrasMu.RUnlock()
	v, ok := p.extras[key]
	return v, ok
}

// Extras returns the chained, live view over this piece's store and its
// ancestors.
func (p *Piece) Extras() Extras { return Extras{piece: p} }

// Items returns the items registered directly on this piece, in declared
// order.
func (p *Piece) Items() []*Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Item, len(p.items))
	copy(out, p.items)
	return out
}

// Children returns the direct children in declared order.
func (p *Piece) Children() []*Piece {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Piece, len(p.children))
	copy(out, p.children)
	return out
}

// Loops returns the loops registered directly on this piece, in declared
// order.
func (p *Piece) Loops() []*Loop {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Loop, len(p.loops))
	copy(out, p.loops)
	return out
}

// Parent returns the owning piece, or nil for a root.
func (p *Piece) Parent() *Piece { return p.parentPiece() }

func (p *Piece) parentPiece() *Piece {
	// parent is only written during startup registration; reads at dispatch
	// time are safe under the single-writer-at-startup model.
	return p.parent
}

// path returns the name/index chain for diagnostics, e.g. "bot/greeter[0]".
func (p *Piece) path() string {
	if p.parent == nil {
		return p.meta.Name
	}
	return fmt.Sprintf("%s/%s[%d]", p.parent.path(), p.meta.Name, p.childIndex)
}

// freezeTree marks every piece of the subtree as frozen. Called with no
// locks held, immediately after a successful flatten.
func (p *Piece) freezeTree() {
	p.mu.Lock()
	p.frozen = true
	children := p.children
	p.mu.Unlock()
	for _, child := range children {
		child.freezeTree()
	}
}
