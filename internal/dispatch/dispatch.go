// Package dispatch issues administrative intervention commands and
// reconciles the result.
//
// Interventions mutate an in-flight combat on the authority, so the
// dispatcher allows a single outstanding command per event id. A second
// request for the same target while one is pending is refused outright
// rather than queued; queueing two mutating commands would let them apply
// out of order.
package dispatch

import (
	"context"
	"sync"

	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/pkg/logger"
	"github.com/orbitfall/combatwatch/pkg/metrics"
)

// Authority sends intervention commands upstream.
type Authority interface {
	Intervene(ctx context.Context, cmd model.InterventionCommand) error
}

// Dispatcher serializes interventions per event id.
type Dispatcher struct {
	mu       sync.Mutex
	inflight map[string]struct{}

	authority Authority
	resync    func(ctx context.Context)
	logger    logger.Logger
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithResync registers the forced re-synchronization hook run after a
// successful intervention. Intervention semantics may alter fields the
// push stream alone cannot reproduce, so the local view is re-polled
// instead of assumed.
func WithResync(fn func(ctx context.Context)) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.resync = fn
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher backed by the given authority.
func NewDispatcher(authority Authority, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		inflight:  make(map[string]struct{}),
		authority: authority,
		resync:    func(context.Context) {},
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = logger.Get().Named("dispatch")
	}
	return d
}

// Dispatch sends one intervention and awaits acknowledgment.
//
// Failures are returned to the caller untouched and never retried here:
// the caller decides whether a transient failure is worth a manual retry,
// and an authority rejection carries its verbatim reason. On success the
// resync hook runs before returning, so callers observe post-intervention
// state on their next read.
func (d *Dispatcher) Dispatch(ctx context.Context, eventID string, action model.InterventionAction) error {
	if eventID == "" {
		return ErrInvalidTarget
	}
	if !action.Valid() {
		return ErrInvalidAction
	}

	if !d.acquire(eventID) {
		metrics.RecordInterventionConflict()
		return ErrInFlight
	}
	defer d.release(eventID)

	cmd := model.InterventionCommand{EventID: eventID, Action: action}
	if err := d.authority.Intervene(ctx, cmd); err != nil {
		metrics.RecordInterventionFailed()
		d.logger.Warn(ctx, "intervention failed",
			logger.String("eventID", eventID),
			logger.String("action", string(action)),
			logger.Error(err),
		)
		return err
	}

	metrics.RecordInterventionDispatched(string(action))
	d.logger.Info(ctx, "intervention acknowledged",
		logger.String("eventID", eventID),
		logger.String("action", string(action)),
	)

	d.resync(ctx)
	return nil
}

// InFlight reports whether an intervention is outstanding for eventID.
func (d *Dispatcher) InFlight(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.inflight[eventID]
	return ok
}

func (d *Dispatcher) acquire(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.inflight[eventID]; ok {
		return false
	}
	d.inflight[eventID] = struct{}{}
	return true
}

func (d *Dispatcher) release(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inflight, eventID)
}
