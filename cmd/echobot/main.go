package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vk/piecekit"
	"github.com/vk/piecekit/examples/greeter"
	"github.com/vk/piecekit/examples/status"
	"github.com/vk/piecekit/examples/webfetch"
	"github.com/vk/piecekit/manifest"
	"github.com/vk/piecekit/runtime/socketio"
)

// main is the entrypoint for the echobot demo: a piece tree attached to a
// socket.io server.
func main() {
	if err := run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	flags := flag.NewFlagSet("echobot", flag.ContinueOnError)
	flags.SetOutput(outW)
	serverURL := flags.String("url", "ws://localhost:3000/socket.io", "socket.io server URL")
	namespace := flags.String("namespace", "", "socket.io namespace")
	manifestPath := flags.String("manifest", "bot.hcl", "path to the piece manifest")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flags.String("log-format", "text", "log format: text or json")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger := newLogger(*logLevel, *logFormat, outW)

	rt, err := socketio.New(socketio.Config{
		URL:       *serverURL,
		Namespace: *namespace,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}

	root, err := buildTree(rt, logger)
	if err != nil {
		return fmt.Errorf("failed to build piece tree: %w", err)
	}

	doc, err := manifest.Load(*manifestPath)
	if err != nil {
		return err
	}
	if err := manifest.ApplyExtras(doc, root); err != nil {
		return err
	}
	if err := manifest.Validate(doc, root); err != nil {
		return err
	}
	logger.Debug("Manifest validation passed.")

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Connect(connectCtx); err != nil {
		return err
	}
	defer rt.Close()

	setup, teardown := root.Handlers()
	if err := setup(context.Background(), rt); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down.")

	return teardown(context.Background(), rt)
}

// buildTree composes the example pieces under one root.
func buildTree(rt *socketio.Runtime, logger *slog.Logger) (*piecekit.Piece, error) {
	root := piecekit.New(piecekit.WithName("bot"), piecekit.WithLogger(logger))

	for _, build := range []func(*socketio.Runtime) (*piecekit.Piece, error){
		greeter.New,
		webfetch.New,
		status.New,
	} {
		child, err := build(rt)
		if err != nil {
			return nil, err
		}
		if err := root.AddChild(child); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}
