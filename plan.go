package piecekit

import "fmt"

// StepOp identifies what a single plan step does when executed.
type StepOp int

const (
	// OpRunHook runs a lifecycle hook.
	OpRunHook StepOp = iota
	// OpRegisterCommand registers a command item with the runtime.
	OpRegisterCommand
	// OpUnregisterCommand removes a command from the runtime.
	OpUnregisterCommand
	// OpRegisterListener registers a listener item with the runtime.
	OpRegisterListener
	// OpUnregisterListener removes a listener from the runtime.
	OpUnregisterListener
	// OpStartLoop starts a periodic loop.
	OpStartLoop
	// OpStopLoop cancels a periodic loop and waits for it to exit.
	OpStopLoop
)

// Step is one entry of a flattened plan: a hook to run, an item to
// (un)register, or a loop to start or stop, together with the piece it came
// from.
type Step struct {
	op    StepOp
	phase HookPhase
	hook  Hook
	item  *Item
	loop  *Loop
	piece *Piece
}

// Op returns the step's operation.
func (s Step) Op() StepOp { return s.op }

// Item returns the item for register/unregister steps, nil otherwise.
func (s Step) Item() *Item { return s.item }

// Piece returns the piece that declared this step.
func (s Step) Piece() *Piece { return s.piece }

// String renders the step for diagnostics and step-failure errors.
func (s Step) String() string {
	switch s.op {
	case OpRunHook:
		return fmt.Sprintf("%s hook (%s)", s.phase, s.piece.path())
	case OpRegisterCommand:
		return fmt.Sprintf("register command %q (%s)", s.item.identity, s.piece.path())
	case OpUnregisterCommand:
		return fmt.Sprintf("unregister command %q (%s)", s.item.identity, s.piece.path())
	case OpRegisterListener:
		return fmt.Sprintf("register listener %q (%s)", s.item.identity, s.piece.path())
	case OpUnregisterListener:
		return fmt.Sprintf("unregister listener %q (%s)", s.item.identity, s.piece.path())
	case OpStartLoop:
		return fmt.Sprintf("start loop %q (%s)", s.loop.name, s.piece.path())
	case OpStopLoop:
		return fmt.Sprintf("stop loop %q (%s)", s.loop.name, s.piece.path())
	default:
		return fmt.Sprintf("step(%d)", int(s.op))
	}
}

// Plan is the flattened form of a piece tree: one ordered attach sequence
// and its reverse-order detach mirror. For every attach entry there is
// exactly one corresponding detach entry, so partially-attached state always
// unwinds cleanly.
type Plan struct {
	attach []Step
	detach []Step
}

// AttachSteps returns a copy of the attach sequence.
func (pl *Plan) AttachSteps() []Step {
	out := make([]Step, len(pl.attach))
	copy(out, pl.attach)
	return out
}

// DetachSteps returns a copy of the detach sequence.
func (pl *Plan) DetachSteps() []Step {
	out := make([]Step, len(pl.detach))
	copy(out, pl.detach)
	return out
}

// Empty reports whether the plan has no steps at all, in which case attach
// and detach are no-ops.
func (pl *Plan) Empty() bool {
	return len(pl.attach) == 0 && len(pl.detach) == 0
}

// Flatten resolves the piece tree rooted at p into a Plan. The traversal is
// depth-first pre-order with children in declared order; a duplicate
// (kind, identity) pair anywhere in the tree fails with
// DuplicateIdentityError naming both declaring pieces.
//
// The first successful flatten caches the plan and freezes the tree, so the
// same tree always flattens to the same plan and re-running attach/detach is
// deterministic. Flatten on an already-frozen tree returns the cached plan.
func (p *Piece) Flatten() (*Plan, error) {
	p.mu.Lock()
	if p.plan != nil {
		plan := p.plan
		p.mu.Unlock()
		return plan, nil
	}
	p.mu.Unlock()

	fl := &flattener{seen: make(map[itemKey]string)}
	if err := fl.walk(p); err != nil {
		return nil, err
	}
	plan := fl.build()

	p.mu.Lock()
	if p.plan == nil {
		p.plan = plan
	}
	plan = p.plan
	p.mu.Unlock()
	p.freezeTree()
	return plan, nil
}

// flattener accumulates the traversal in phase buckets; build assembles the
// final sequences from them.
type flattener struct {
	seen map[itemKey]string

	preLoad    []Step
	postLoad   []Step
	preUnload  []Step
	postUnload []Step
	commands   []Step
	listeners  []Step
	loops      []Step
}

func (fl *flattener) walk(p *Piece) error {
	path := p.path()

	for _, item := range p.items {
		key := item.key()
		if first, exists := fl.seen[key]; exists {
			return &DuplicateIdentityError{
				Kind:       item.kind,
				Identity:   item.identity,
				FirstPath:  first,
				SecondPath: path,
			}
		}
		fl.seen[key] = path

		switch item.kind {
		case KindCommand:
			fl.commands = append(fl.commands, Step{op: OpRegisterCommand, item: item, piece: p})
		case KindListener:
			fl.listeners = append(fl.listeners, Step{op: OpRegisterListener, item: item, piece: p})
		}
	}

	for _, hook := range p.hooks[PreLoad] {
		fl.preLoad = append(fl.preLoad, Step{op: OpRunHook, phase: PreLoad, hook: hook, piece: p})
	}
	for _, hook := range p.hooks[PostLoad] {
		fl.postLoad = append(fl.postLoad, Step{op: OpRunHook, phase: PostLoad, hook: hook, piece: p})
	}
	for _, hook := range p.hooks[PreUnload] {
		fl.preUnload = append(fl.preUnload, Step{op: OpRunHook, phase: PreUnload, hook: hook, piece: p})
	}
	for _, hook := range p.hooks[PostUnload] {
		fl.postUnload = append(fl.postUnload, Step{op: OpRunHook, phase: PostUnload, hook: hook, piece: p})
	}

	for _, loop := range p.loops {
		fl.loops = append(fl.loops, Step{op: OpStartLoop, loop: loop, piece: p})
	}

	for _, child := range p.children {
		if err := fl.walk(child); err != nil {
			return err
		}
	}
	return nil
}

// build assembles the attach sequence and its positional detach mirror.
// Attach runs pre-load hooks, command registrations, listener registrations,
// loop starts, then post-load hooks, each bucket in traversal order. Detach
// is the exact reverse, with the unload hook phases substituted: teardown
// must undo the most-recently-initialized state first.
func (fl *flattener) build() *Plan {
	attach := make([]Step, 0,
		len(fl.preLoad)+len(fl.commands)+len(fl.listeners)+len(fl.loops)+len(fl.postLoad))
	attach = append(attach, fl.preLoad...)
	attach = append(attach, fl.commands...)
	attach = append(attach, fl.listeners...)
	attach = append(attach, fl.loops...)
	attach = append(attach, fl.postLoad...)

	detach := make([]Step, 0,
		len(fl.preUnload)+len(fl.loops)+len(fl.listeners)+len(fl.commands)+len(fl.postUnload))
	detach = appendReversed(detach, fl.preUnload)
	for i := len(fl.loops) - 1; i >= 0; i-- {
		step := fl.loops[i]
		step.op = OpStopLoop
		detach = append(detach, step)
	}
	for i := len(fl.listeners) - 1; i >= 0; i-- {
		step := fl.listeners[i]
		step.op = OpUnregisterListener
		detach = append(detach, step)
	}
	for i := len(fl.commands) - 1; i >= 0; i-- {
		step := fl.commands[i]
		step.op = OpUnregisterCommand
		detach = append(detach, step)
	}
	detach = appendReversed(detach, fl.postUnload)

	return &Plan{attach: attach, detach: detach}
}

func appendReversed(dst, src []Step) []Step {
	for i := len(src) - 1; i >= 0; i-- {
		dst = append(dst, src[i])
	}
	return dst
}
