// Package worker relays outbox entries to a downstream audit.Store.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Outbox is the source side of the relay.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkProcessed(ctx context.Context, ids []string) error
}

// Relay polls the outbox and forwards entries in order. A failed Append stops
// the batch so later events of the same session are not delivered first.
type Relay struct {
	outbox    Outbox
	sink      audit.Store
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	onFailure func(error)
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFailureHook is called once per failed relay pass.
func WithFailureHook(fn func(error)) Option {
	return func(r *Relay) {
		r.onFailure = fn
	}
}

func NewRelay(outbox Outbox, sink audit.Store, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		sink:      sink,
		logger:    slog.Default(),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
					if r.onFailure != nil {
						r.onFailure(err)
					}
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// RelayOnce forwards one batch and returns how many entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	done := make([]string, 0, len(entries))
	var sendErr error
	for _, e := range entries {
		if sendErr = r.sink.Append(ctx, e.Event); sendErr != nil {
			break
		}
		done = append(done, e.ID)
	}
	if err := r.outbox.MarkProcessed(ctx, done); err != nil {
		return 0, err
	}
	return len(done), sendErr
}
