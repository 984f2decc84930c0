package piecekit

import (
	"context"
	"time"

	"github.com/vk/piecekit/ctxlog"
)

// LoopFunc is one iteration of a periodic loop. A returned error is logged
// and the loop keeps ticking; only detach (or attach rollback) stops it.
type LoopFunc func(ctx context.Context) error

// Loop is a periodic task owned by a piece. It is started when the tree
// attaches and cancelled, in LIFO order, when the tree detaches. Loops carry
// no identity and are never deduplicated.
type Loop struct {
	name  string
	every time.Duration
	fn    LoopFunc

	cancel context.CancelFunc
	done   chan struct{}
}

// Name returns the loop's diagnostic name.
func (l *Loop) Name() string { return l.name }

// Interval returns the tick interval.
func (l *Loop) Interval() time.Duration { return l.every }

// start launches the loop goroutine. The loop's lifetime is decoupled from
// the attach call's context: attach completing (or being cancelled later)
// must not kill a loop that was successfully started, so only the loop's own
// cancel stops it. The logger travels over from the attach context.
func (l *Loop) start(ctx context.Context) {
	if l.done != nil {
		// Already running; a second Load on the same root is serialized
		// behind the matching Unload, so this only happens on programmer
		// error. Treat as a no-op rather than leaking a goroutine.
		return
	}

	logger := ctxlog.FromContext(ctx).With("loop", l.name)
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.every)
		defer ticker.Stop()

		logger.Debug("Loop started.", "interval", l.every)
		for {
			select {
			case <-loopCtx.Done():
				logger.Debug("Loop stopped.")
				return
			case <-ticker.C:
				if err := l.fn(loopCtx); err != nil {
					logger.Error("Loop iteration failed.", "error", err)
				}
			}
		}
	}()
}

// stop cancels the loop and waits for its goroutine to exit, so teardown
// ordering guarantees hold for whatever the loop body touches. After stop
// the loop may be started again by a later attach.
func (l *Loop) stop() {
	if l.done == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
}
