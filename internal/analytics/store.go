package analytics

import (
	"context"

	"go.uber.org/zap"
)

// Store is the append-only event log. Append must never interleave partial
// writes under concurrency; Query returns events newest-first.
type Store interface {
	Append(ctx context.Context, e Event) error
	Query(ctx context.Context, f Filter) ([]Event, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Recorder wraps a Store for best-effort call sites: a failed append is
// logged and reported, but callers discard the result on purpose so that
// analytics never block a primary user flow.
type Recorder struct {
	store Store
	log   *zap.Logger
}

// NewRecorder creates a best-effort event recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, log: zap.L().With(zap.String("component", "analytics.recorder"))}
}

// Record appends the event, logging a warning on failure. The error return
// exists to make the best-effort contract visible; call sites discard it.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if r == nil || r.store == nil {
		return nil
	}
	if err := r.store.Append(ctx, e); err != nil {
		r.log.Warn("event dropped",
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
