package storage

import (
	"context"
	"time"
)

// Flusher debounces snapshot writes. Mutating operations call Mark; the Run
// loop coalesces marks arriving within the configured interval into a single
// flush, so a burst of clicks costs one snapshot write instead of one per
// click. A final flush runs on shutdown.
type Flusher struct {
	interval time.Duration
	dirty    chan struct{}
	flush    func(context.Context) error
}

// NewFlusher creates a Flusher that invokes flush at most once per interval.
// The flush callback is responsible for reporting its own failures; a
// persistence failure never aborts the operation that triggered it.
func NewFlusher(interval time.Duration, flush func(context.Context) error) *Flusher {
	return &Flusher{
		interval: interval,
		dirty:    make(chan struct{}, 1),
		flush:    flush,
	}
}

// Mark signals that in-memory state has changed and needs to be persisted.
// It never blocks; marks arriving while a flush is pending are coalesced.
func (f *Flusher) Mark() {
	select {
	case f.dirty <- struct{}{}:
	default:
	}
}

// Run drives the debounce loop until ctx is cancelled, then performs a final
// flush so no acknowledged mutation is lost on a clean shutdown.
func (f *Flusher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return f.flush(context.WithoutCancel(ctx))
		case <-f.dirty:
			timer := time.NewTimer(f.interval)

			select {
			case <-timer.C:
				_ = f.flush(ctx)
			case <-ctx.Done():
				timer.Stop()
				return f.flush(context.WithoutCancel(ctx))
			}
		}
	}
}
