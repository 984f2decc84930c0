package piecekit

import (
	"context"
	"fmt"

	"github.com/vk/piecekit/ctxlog"
)

// SetupFunc matches the host loader's setup/teardown calling convention.
type SetupFunc func(ctx context.Context, rt Runtime) error

// Handlers derives the extension handler pair the host loader expects.
// Setup runs Load, teardown runs Unload; both capture only the piece, so the
// pair is cheap to create and safe to hand out before the tree is flattened.
func (p *Piece) Handlers() (setup, teardown SetupFunc) {
	return p.Load, p.Unload
}

// Load flattens the tree (on first use) and executes the attach plan against
// the runtime, step by step in strict sequence. If any step fails, every
// registration and loop start already executed by this call is undone in
// LIFO order before the failure is returned as an AttachStepError: attach is
// all-or-nothing from the caller's perspective.
//
// Context cancellation between steps is treated as a synthetic step failure
// and triggers the same rollback.
func (p *Piece) Load(ctx context.Context, rt Runtime) error {
	plan, err := p.Flatten()
	if err != nil {
		return err
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	ctx = ctxlog.WithLogger(ctx, p.logger)
	executed := make([]Step, 0, len(plan.attach))

	for _, step := range plan.attach {
		if err := ctx.Err(); err != nil {
			p.rollback(ctx, rt, executed)
			return &AttachStepError{Step: step.String(), Err: err}
		}
		if err := p.runAttachStep(ctx, rt, step); err != nil {
			p.rollback(ctx, rt, executed)
			return &AttachStepError{Step: step.String(), Err: err}
		}
		executed = append(executed, step)
	}

	p.logger.Info("Successfully loaded piece.", "piece", p.meta.Name, "steps", len(plan.attach))
	return nil
}

// Unload executes the full detach plan in order. Failures do not
// short-circuit: a host shutting down needs every removable resource
// released even if one removal misbehaves, so errors are collected and
// returned together as a DetachAggregateError once the plan has run to the
// end. Unload deliberately ignores context cancellation between steps; the
// context is still passed through to hooks and runtime calls.
func (p *Piece) Unload(ctx context.Context, rt Runtime) error {
	plan, err := p.Flatten()
	if err != nil {
		return err
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	ctx = ctxlog.WithLogger(ctx, p.logger)
	var errs []error

	for _, step := range plan.detach {
		if err := p.runDetachStep(ctx, rt, step); err != nil {
			p.logger.Error("Detach step failed, continuing teardown.", "step", step.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.String(), err))
		}
	}

	if len(errs) > 0 {
		return &DetachAggregateError{Errs: errs}
	}
	p.logger.Info("Successfully unloaded piece.", "piece", p.meta.Name, "steps", len(plan.detach))
	return nil
}

func (p *Piece) runAttachStep(ctx context.Context, rt Runtime, step Step) error {
	switch step.op {
	case OpRunHook:
		return step.hook(ctx)
	case OpRegisterCommand:
		return rt.RegisterCommand(ctx, step.item)
	case OpRegisterListener:
		return rt.RegisterListener(ctx, step.item)
	case OpStartLoop:
		step.loop.start(ctx)
		return nil
	default:
		return fmt.Errorf("unexpected attach op %d", int(step.op))
	}
}

func (p *Piece) runDetachStep(ctx context.Context, rt Runtime, step Step) error {
	switch step.op {
	case OpRunHook:
		return step.hook(ctx)
	case OpUnregisterCommand:
		return rt.UnregisterCommand(ctx, step.item.identity)
	case OpUnregisterListener:
		return rt.UnregisterListener(ctx, step.item.identity)
	case OpStopLoop:
		step.loop.stop()
		return nil
	default:
		return fmt.Errorf("unexpected detach op %d", int(step.op))
	}
}

// rollback undoes already-executed attach steps in LIFO order. Registrations
// are reverted through the corresponding unregister call and loops are
// stopped; hook steps have no inverse and are skipped. Rollback is
// best-effort: undo failures are logged, and the original attach failure is
// what the caller sees. The parent context may already be cancelled, so
// undo calls run with cancellation stripped.
func (p *Piece) rollback(ctx context.Context, rt Runtime, executed []Step) {
	undoCtx := context.WithoutCancel(ctx)
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		var err error
		switch step.op {
		case OpRegisterCommand:
			err = rt.UnregisterCommand(undoCtx, step.item.identity)
		case OpRegisterListener:
			err = rt.UnregisterListener(undoCtx, step.item.identity)
		case OpStartLoop:
			step.loop.stop()
		case OpRunHook:
			// No inverse; unload hooks belong to a full Unload, not to a
			// failed Load.
		}
		if err != nil {
			p.logger.Error("Rollback step failed.", "step", step.String(), "error", err)
		}
	}
}
