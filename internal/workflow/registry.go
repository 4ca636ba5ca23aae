package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry supervises detached workflow goroutines: every spawned run is
// tracked, panics are recovered and logged centrally, and Shutdown waits
// for in-flight runs instead of abandoning them.
type Registry struct {
	wg sync.WaitGroup

	mu     sync.Mutex
	cancel []context.CancelFunc
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Go runs fn on a supervised goroutine with its own cancellable context,
// detached from the caller's (the trigger request has usually already
// returned by the time the run makes progress).
func (r *Registry) Go(name string, fn func(ctx context.Context)) bool {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		slog.Warn("task rejected, registry shut down", "task", name)
		return false
	}
	r.cancel = append(r.cancel, cancel)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(ctx, "panic recovered in supervised task",
					"task", name, "panic", rec)
			}
		}()

		start := time.Now()
		slog.DebugContext(ctx, "task started", "task", name)
		fn(ctx)
		slog.DebugContext(ctx, "task finished",
			"task", name, "duration_ms", time.Since(start).Milliseconds())
	}()
	return true
}

// Shutdown cancels outstanding task contexts and waits for them to finish
// or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	cancels := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
