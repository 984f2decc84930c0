package socketio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/piecekit"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(Config{URL: "ws://localhost:9999/socket.io"})
	require.NoError(t, err)
	return rt
}

func nopHandler(context.Context, ...any) error { return nil }

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "://not-a-url"})
	assert.ErrorContains(t, err, "failed to parse URL")
}

func TestRegisterCommand(t *testing.T) {
	t.Run("accepts a HandlerFunc", func(t *testing.T) {
		rt := newTestRuntime(t)
		item := piecekit.NewCommand("ping", HandlerFunc(nopHandler))
		require.NoError(t, rt.RegisterCommand(context.Background(), item))
	})

	t.Run("rejects other handler types", func(t *testing.T) {
		rt := newTestRuntime(t)
		item := piecekit.NewCommand("ping", "not a handler")
		err := rt.RegisterCommand(context.Background(), item)
		var bad *BadHandlerError
		require.ErrorAs(t, err, &bad)
		assert.Equal(t, "ping", bad.Identity)
	})

	t.Run("rejects double registration", func(t *testing.T) {
		rt := newTestRuntime(t)
		item := piecekit.NewCommand("ping", HandlerFunc(nopHandler))
		require.NoError(t, rt.RegisterCommand(context.Background(), item))
		assert.ErrorContains(t, rt.RegisterCommand(context.Background(), item), "already registered")
	})

	t.Run("command and listener identities do not collide", func(t *testing.T) {
		rt := newTestRuntime(t)
		cmd := piecekit.NewCommand("ready", HandlerFunc(nopHandler))
		lst := piecekit.NewListener("ready", HandlerFunc(nopHandler))
		require.NoError(t, rt.RegisterCommand(context.Background(), cmd))
		require.NoError(t, rt.RegisterListener(context.Background(), lst))
	})
}

func TestUnregister(t *testing.T) {
	rt := newTestRuntime(t)
	item := piecekit.NewListener("on_message", HandlerFunc(nopHandler))
	require.NoError(t, rt.RegisterListener(context.Background(), item))
	require.NoError(t, rt.UnregisterListener(context.Background(), "on_message"))

	// A second removal is an error the detach path will collect.
	assert.ErrorContains(t, rt.UnregisterListener(context.Background(), "on_message"), "is not registered")

	assert.ErrorContains(t, rt.UnregisterCommand(context.Background(), "never-added"), "is not registered")
}

func TestWrap(t *testing.T) {
	var calls []string
	handler := func(context.Context, ...any) error {
		calls = append(calls, "handler")
		return nil
	}
	pass := func(context.Context, ...any) (bool, error) {
		calls = append(calls, "pass")
		return true, nil
	}
	block := func(context.Context, ...any) (bool, error) {
		calls = append(calls, "block")
		return false, nil
	}

	t.Run("checks run in order before the handler", func(t *testing.T) {
		calls = nil
		wrapped := Wrap(handler, pass, pass)
		require.NoError(t, wrapped(context.Background()))
		assert.Equal(t, []string{"pass", "pass", "handler"}, calls)
	})

	t.Run("a failing check suppresses the handler silently", func(t *testing.T) {
		calls = nil
		wrapped := Wrap(handler, pass, block)
		require.NoError(t, wrapped(context.Background()))
		assert.Equal(t, []string{"pass", "block"}, calls)
	})

	t.Run("a check error propagates", func(t *testing.T) {
		calls = nil
		boom := errors.New("check failed")
		wrapped := Wrap(handler, func(context.Context, ...any) (bool, error) { return false, boom })
		assert.ErrorIs(t, wrapped(context.Background()), boom)
		assert.Empty(t, calls)
	})
}
