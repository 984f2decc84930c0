// Package runtimetest provides an in-memory piecekit.Runtime for tests. It
// records every call in order, tracks which commands and listeners are
// currently registered, and can be scripted to fail at specific steps to
// exercise rollback and aggregate-error paths.
package runtimetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/piecekit"
)

// Op names mirror the runtime capability set.
const (
	OpRegisterCommand    = "register_command"
	OpUnregisterCommand  = "unregister_command"
	OpRegisterListener   = "register_listener"
	OpUnregisterListener = "unregister_listener"
)

// Call is one recorded runtime invocation.
type Call struct {
	Op       string
	Identity string
}

// Runtime is a recording fake. The zero value is not usable; construct with
// New.
type Runtime struct {
	mu        sync.Mutex
	calls     []Call
	failures  map[Call]error
	commands  map[string]*piecekit.Item
	listeners map[string]*piecekit.Item
}

// New creates an empty fake runtime.
func New() *Runtime {
	return &Runtime{
		failures:  make(map[Call]error),
		commands:  make(map[string]*piecekit.Item),
		listeners: make(map[string]*piecekit.Item),
	}
}

// FailOn scripts the runtime to return err whenever the given op/identity
// pair is invoked. The call is still recorded.
func (r *Runtime) FailOn(op, identity string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[Call{Op: op, Identity: identity}] = err
}

// RegisterCommand implements piecekit.Runtime.
func (r *Runtime) RegisterCommand(_ context.Context, item *piecekit.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := Call{Op: OpRegisterCommand, Identity: item.Identity()}
	r.calls = append(r.calls, call)
	if err := r.failures[call]; err != nil {
		return err
	}
	if _, exists := r.commands[item.Identity()]; exists {
		return fmt.Errorf("command %q already registered", item.Identity())
	}
	r.commands[item.Identity()] = item
	return nil
}

// UnregisterCommand implements piecekit.Runtime.
func (r *Runtime) UnregisterCommand(_ context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := Call{Op: OpUnregisterCommand, Identity: identity}
	r.calls = append(r.calls, call)
	if err := r.failures[call]; err != nil {
		return err
	}
	if _, exists := r.commands[identity]; !exists {
		return fmt.Errorf("command %q is not registered", identity)
	}
	delete(r.commands, identity)
	return nil
}

// RegisterListener implements piecekit.Runtime.
func (r *Runtime) RegisterListener(_ context.Context, item *piecekit.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := Call{Op: OpRegisterListener, Identity: item.Identity()}
	r.calls = append(r.calls, call)
	if err := r.failures[call]; err != nil {
		return err
	}
	if _, exists := r.listeners[item.Identity()]; exists {
		return fmt.Errorf("listener %q already registered", item.Identity())
	}
	r.listeners[item.Identity()] = item
	return nil
}

// UnregisterListener implements piecekit.Runtime.
func (r *Runtime) UnregisterListener(_ context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := Call{Op: OpUnregisterListener, Identity: identity}
	r.calls = append(r.calls, call)
	if err := r.failures[call]; err != nil {
		return err
	}
	if _, exists := r.listeners[identity]; !exists {
		return fmt.Errorf("listener %q is not registered", identity)
	}
	delete(r.listeners, identity)
	return nil
}

// Calls returns a copy of every recorded invocation, in order.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// RegisteredCommands returns the identities of currently registered
// commands. Order is unspecified.
func (r *Runtime) RegisteredCommands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.commands))
	for identity := range r.commands {
		out = append(out, identity)
	}
	return out
}

// RegisteredListeners returns the identities of currently registered
// listeners. Order is unspecified.
func (r *Runtime) RegisteredListeners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.listeners))
	for identity := range r.listeners {
		out = append(out, identity)
	}
	return out
}

// Empty reports whether nothing is currently registered.
func (r *Runtime) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands) == 0 && len(r.listeners) == 0
}

var _ piecekit.Runtime = (*Runtime)(nil)
