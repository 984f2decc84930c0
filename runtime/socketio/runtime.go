// Package socketio adapts a socket.io client connection into a
// piecekit.Runtime. Listeners subscribe to the socket event named by their
// identity; commands subscribe to the same event namespaced under
// CommandEventPrefix, so the two item kinds can never clobber each other on
// the wire.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/piecekit"
	"github.com/vk/piecekit/ctxlog"
)

// CommandEventPrefix namespaces command events away from plain listener
// events on the shared socket.
const CommandEventPrefix = "cmd:"

// HandlerFunc is the handler type this runtime understands. Items carrying
// any other handler type are rejected at registration with a
// BadHandlerError, which aborts the attach and triggers rollback.
type HandlerFunc func(ctx context.Context, args ...any) error

// BadHandlerError reports an item whose opaque handler is not a HandlerFunc.
type BadHandlerError struct {
	Identity string
	Handler  any
}

func (e *BadHandlerError) Error() string {
	return fmt.Sprintf("item %q: handler type %T is not a socketio.HandlerFunc", e.Identity, e.Handler)
}

// Config holds the connection settings for a runtime.
type Config struct {
	// URL is the socket.io endpoint, e.g. "wss://host/socket.io".
	URL string
	// Namespace selects the socket.io namespace; empty means the root
	// namespace.
	Namespace string
	// ConnectTimeout bounds Connect; defaults to 10s.
	ConnectTimeout time.Duration
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runtime is a piecekit.Runtime backed by one socket.io client connection.
type Runtime struct {
	cfg    Config
	logger *slog.Logger
	io     *socket.Socket

	mu     sync.Mutex
	events map[string]types.EventName
}

var _ piecekit.Runtime = (*Runtime)(nil)

// New builds the client for the configured endpoint. The connection is not
// established until Connect.
func New(cfg Config) (*Runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("runtime", "socketio", "url", cfg.URL, "namespace", cfg.Namespace)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	return &Runtime{
		cfg:    cfg,
		logger: logger,
		io:     io,
		events: make(map[string]types.EventName),
	}, nil
}

// Connect establishes the connection and waits for the initial handshake.
func (r *Runtime) Connect(ctx context.Context) error {
	timeout := r.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	done := make(chan error, 1)
	r.io.Once(types.EventName("connect"), func(...any) {
		r.logger.Info("Successfully connected", "sid", r.io.Id())
		done <- nil
	})
	r.io.Once(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				done <- err
				return
			}
		}
		done <- fmt.Errorf("socket.io connection failed")
	})

	r.io.Connect()

	select {
	case err := <-done:
		if err != nil {
			r.io.Disconnect()
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		r.io.Disconnect()
		return fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		r.io.Disconnect()
		return fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Close disconnects the socket.
func (r *Runtime) Close() {
	r.logger.Debug("Disconnecting socket client")
	r.io.Disconnect()
}

// RegisterCommand implements piecekit.Runtime.
func (r *Runtime) RegisterCommand(ctx context.Context, item *piecekit.Item) error {
	return r.register(ctx, commandKey(item.Identity()), CommandEventPrefix+item.Identity(), item)
}

// UnregisterCommand implements piecekit.Runtime.
func (r *Runtime) UnregisterCommand(_ context.Context, identity string) error {
	return r.unregister(commandKey(identity))
}

// RegisterListener implements piecekit.Runtime.
func (r *Runtime) RegisterListener(ctx context.Context, item *piecekit.Item) error {
	return r.register(ctx, listenerKey(item.Identity()), item.Identity(), item)
}

// UnregisterListener implements piecekit.Runtime.
func (r *Runtime) UnregisterListener(_ context.Context, identity string) error {
	return r.unregister(listenerKey(identity))
}

func (r *Runtime) register(ctx context.Context, key, event string, item *piecekit.Item) error {
	handler, ok := item.Handler().(HandlerFunc)
	if !ok {
		return &BadHandlerError{Identity: item.Identity(), Handler: item.Handler()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[key]; exists {
		return fmt.Errorf("%s already registered", key)
	}

	logger := ctxlog.FromContext(ctx).With("event", event)
	eventName := types.EventName(event)
	r.io.On(eventName, func(args ...any) {
		// Handlers run on the socket's dispatch goroutine with a fresh
		// context; the attach context may be long gone by then.
		handlerCtx := ctxlog.WithLogger(context.Background(), logger)
		if err := handler(handlerCtx, args...); err != nil {
			logger.Error("Handler failed.", "error", err)
		}
	})
	r.events[key] = eventName
	logger.Debug("Registered socket.io handler.", "key", key)
	return nil
}

func (r *Runtime) unregister(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, exists := r.events[key]
	if !exists {
		return fmt.Errorf("%s is not registered", key)
	}
	r.io.RemoveAllListeners(event)
	delete(r.events, key)
	r.logger.Debug("Unregistered socket.io handler.", "key", key)
	return nil
}

// Emit sends an event to the server, for handlers that want to respond. It
// fails if the socket is not connected; past that point delivery is
// fire-and-forget.
func (r *Runtime) Emit(event string, args ...any) error {
	if !r.io.Connected() {
		return fmt.Errorf("cannot emit %q: socket is not connected", event)
	}
	r.io.Emit(event, args...)
	return nil
}

func commandKey(identity string) string  { return "command " + identity }
func listenerKey(identity string) string { return "listener " + identity }

// Wrap prepends predicate checks to a handler: every check must pass, in
// order, before the handler runs. This mirrors piece-wide command checks;
// apply it when constructing the item.
func Wrap(handler HandlerFunc, checks ...func(ctx context.Context, args ...any) (bool, error)) HandlerFunc {
	return func(ctx context.Context, args ...any) error {
		for _, check := range checks {
			ok, err := check(ctx, args...)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		return handler(ctx, args...)
	}
}
