// Package publisher fans domain audit events out to an audit.Store.
//
// In async mode Emit never blocks the caller: events go into a bounded buffer
// drained by one goroutine, and sink failures are reported on Errors() instead
// of being returned to the emitting operation.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "github.com/amaralBruno27866/member-platform-test-sub015/pkg/platform/audit"
)

// ErrBufferFull is returned by Emit in async mode when the buffer has no room.
var ErrBufferFull = errors.New("audit buffer full")

// ErrNotListable is returned by List when the store cannot read events back.
var ErrNotListable = errors.New("audit store does not support listing")

// DeliveryError reports an event the sink failed to accept.
type DeliveryError struct {
	Event audit.Event
	Err   error
}

func (e *DeliveryError) Error() string {
	return "audit delivery failed for " + e.Event.Action + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	buffer     chan audit.Event
	errs       chan error
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		errs:   make(chan error, 64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.Event, p.bufferSize)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Sync mode returns the store error; async mode only
// fails when the buffer is full or ctx is already done.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"session_id", event.SessionID,
		)
		return ErrBufferFull
	}
}

// Errors exposes sink failures from async delivery. The channel is closed by Close.
func (p *Publisher) Errors() <-chan error {
	return p.errs
}

// List reads back the events of one session when the store supports it.
func (p *Publisher) List(ctx context.Context, sessionID string) ([]audit.Event, error) {
	lister, ok := p.store.(audit.Lister)
	if !ok {
		return nil, ErrNotListable
	}
	return lister.ListBySession(ctx, sessionID)
}

// Close drains buffered events and stops the worker.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
		close(p.errs)
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		// detached from the emitting request, which has usually finished
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.store.Append(ctx, event)
		cancel()
		if err == nil {
			continue
		}
		p.logger.Error("audit delivery failed",
			"action", event.Action,
			"session_id", event.SessionID,
			"error", err,
		)
		select {
		case p.errs <- &DeliveryError{Event: event, Err: err}:
		default:
		}
	}
}
