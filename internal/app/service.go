// Package service implements the reconciliation controller that merges the
// push stream and the poll cycle into one consistent view of live combat.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitfall/combatwatch/internal/adapters/push"
	"github.com/orbitfall/combatwatch/internal/dispatch"
	"github.com/orbitfall/combatwatch/internal/domain/buffer"
	"github.com/orbitfall/combatwatch/internal/domain/dispute"
	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/internal/domain/stats"
	"github.com/orbitfall/combatwatch/pkg/logger"
	"github.com/orbitfall/combatwatch/pkg/metrics"
)

// Default controller configuration constants.
const (
	defaultPollInterval   = 30 * time.Second
	defaultBufferCapacity = 100
	degradedThreshold     = 3 // consecutive poll failures before degraded mode
)

// AuthorityClient is the slice of the authority API the controller needs.
type AuthorityClient interface {
	LiveEvents(ctx context.Context) ([]model.CombatEvent, error)
	StatsSnapshot(ctx context.Context) (model.StatsSnapshot, error)
	Disputes(ctx context.Context) ([]model.CombatDispute, error)
	Intervene(ctx context.Context, cmd model.InterventionCommand) error
	FileDispute(ctx context.Context, d model.CombatDispute) error
	ResolveDispute(ctx context.Context, id string, outcome model.DisputeStatus) error
}

// Subscriber is the push stream lifecycle the controller drives.
type Subscriber interface {
	Start(ctx context.Context) error
	Stop()
}

// Service owns the live combat state and is its single serialization
// point: a push-triggered apply and a poll-triggered apply never run
// concurrently against the same in-memory state.
type Service struct {
	mu sync.Mutex

	// Core components
	buffer     *buffer.Buffer
	stats      *stats.Aggregator
	tracker    *dispute.Tracker
	dispatcher *dispatch.Dispatcher

	// Collaborators
	authority  AuthorityClient
	subscriber Subscriber
	pushURL    string

	// Configuration
	pollInterval   time.Duration
	bufferCapacity int

	// State
	started      bool
	stopCh       chan struct{}
	pollDone     chan struct{}
	pollFailures int
	degraded     bool
	lastUpdated  time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAuthority sets the authority client.
func WithAuthority(c AuthorityClient) Option {
	return func(s *Service) {
		if c != nil {
			s.authority = c
		}
	}
}

// WithSubscriber injects a push subscriber, mainly for tests. When unset
// and a push URL is configured, the service builds a WebSocket subscriber
// on Start.
func WithSubscriber(sub Subscriber) Option {
	return func(s *Service) {
		if sub != nil {
			s.subscriber = sub
		}
	}
}

// WithPushURL sets the authority's push stream endpoint.
func WithPushURL(url string) Option {
	return func(s *Service) {
		s.pushURL = url
	}
}

// WithPollInterval sets the poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithBufferCapacity bounds the event buffer.
func WithBufferCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bufferCapacity = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		pollInterval:   defaultPollInterval,
		bufferCapacity: defaultBufferCapacity,
		stopCh:         make(chan struct{}),
		pollDone:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes components, runs an initial sync, subscribes to the
// push stream and begins the poll cycle.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.authority == nil {
		s.mu.Unlock()
		return ErrNoAuthority
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting combat monitor...")

	s.buffer = buffer.New(buffer.WithCapacity(s.bufferCapacity))
	s.stats = stats.New()
	s.tracker = dispute.NewTracker()
	s.dispatcher = dispatch.NewDispatcher(s.authority,
		dispatch.WithResync(func(ctx context.Context) { s.ForceSync(ctx) }),
		dispatch.WithLogger(s.logger.Named("dispatch")),
	)

	if s.subscriber == nil && s.pushURL != "" {
		s.subscriber = push.NewSubscriber(s.pushURL, s,
			push.WithLogger(s.logger.Named("push")),
		)
	}

	s.started = true
	s.mu.Unlock()

	if s.subscriber != nil {
		if err := s.subscriber.Start(ctx); err != nil {
			return err
		}
	}

	// Initial sync so the view is populated before the first tick.
	s.poll(ctx)

	go s.pollLoop(ctx)

	s.logger.Info(ctx, "combat monitor started",
		logger.Int("bufferCapacity", s.bufferCapacity),
		logger.Any("pollInterval", s.pollInterval),
	)
	return nil
}

// Stop tears the controller down. After Stop returns, no further state
// mutation occurs: every apply path checks the done signal under the lock
// before touching state, so late poll results and push messages are
// dropped on arrival.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}

	s.logger.Info(context.Background(), "stopping combat monitor...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.started = false
	s.mu.Unlock()

	if s.subscriber != nil {
		s.subscriber.Stop()
	}
	<-s.pollDone

	s.logger.Info(context.Background(), "combat monitor stopped")
}

// stopped reports whether teardown has been signaled.
// Must be called with s.mu held.
func (s *Service) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// pollLoop drives the fixed-interval poll. Polling stays on schedule even
// while degraded; degraded mode is a display signal, not a circuit breaker.
func (s *Service) pollLoop(ctx context.Context) {
	defer close(s.pollDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll fetches a full snapshot set from the authority and applies it.
// Fetches happen outside the lock; only the apply is serialized.
func (s *Service) poll(ctx context.Context) {
	events, eventsErr := s.authority.LiveEvents(ctx)
	snap, snapErr := s.authority.StatsSnapshot(ctx)
	disputes, disputesErr := s.authority.Disputes(ctx)

	failed := eventsErr != nil || snapErr != nil || disputesErr != nil

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped() {
		return
	}

	// Apply whatever succeeded; last-known-good covers the rest.
	if eventsErr == nil {
		applied, rejected := s.buffer.IngestBatch(events)
		if rejected > 0 {
			s.logger.Warn(ctx, "poll returned malformed events",
				logger.Int("rejected", rejected),
			)
		}
		if applied > 0 {
			s.logger.Debug(ctx, "poll merged events", logger.Int("applied", applied))
		}
	}
	if snapErr == nil {
		if err := s.stats.Apply(snap); err != nil && !errors.Is(err, stats.ErrStale) {
			s.logger.Warn(ctx, "poll snapshot not applied", logger.Error(err))
		}
	}
	if disputesErr == nil {
		s.tracker.Replace(disputes)
	}

	if failed {
		s.pollFailures++
		metrics.RecordPollFailure()
		metrics.UpdateConsecutivePollFailures(s.pollFailures)
		err := errors.Join(eventsErr, snapErr, disputesErr)
		s.logger.Warn(ctx, "poll cycle failed; keeping last-known-good state",
			logger.Int("consecutiveFailures", s.pollFailures),
			logger.Error(err),
		)
		if s.pollFailures >= degradedThreshold && !s.degraded {
			s.degraded = true
			metrics.UpdateDegraded(true)
			s.logger.Error(ctx, "entering degraded mode",
				logger.Int("consecutiveFailures", s.pollFailures),
			)
		}
		return
	}

	s.pollFailures = 0
	metrics.RecordPollSuccess()
	metrics.UpdateConsecutivePollFailures(0)
	if s.degraded {
		s.degraded = false
		metrics.UpdateDegraded(false)
		s.logger.Info(ctx, "leaving degraded mode")
	}
	s.lastUpdated = time.Now().UTC()
}

// ForceSync runs one poll cycle immediately, outside the regular schedule.
// Used after an acknowledged intervention, whose effects may not be
// derivable from the push stream.
func (s *Service) ForceSync(ctx context.Context) {
	s.poll(ctx)
}

// HandleCombatEvent applies one push-delivered event incrementally.
func (s *Service) HandleCombatEvent(ctx context.Context, ev model.CombatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped() {
		return
	}

	changed, err := s.buffer.Ingest(ev)
	if err != nil {
		s.logger.Warn(ctx, "rejected malformed push event",
			logger.String("eventID", ev.ID),
			logger.Error(err),
		)
		return
	}
	if changed {
		s.lastUpdated = time.Now().UTC()
	}
}

// HandleDispute applies one push-delivered dispute. A finalized status on
// a known dispute is an authority-confirmed resolution; a duplicate
// confirmation is dropped as a conflict without changing state.
func (s *Service) HandleDispute(ctx context.Context, d model.CombatDispute) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped() {
		return
	}

	var err error
	if d.Status.Final() {
		if _, known := s.tracker.Get(d.ID); known {
			err = s.tracker.ApplyResolution(d.ID, d.Status)
			if errors.Is(err, dispute.ErrConflict) {
				s.logger.Debug(ctx, "duplicate dispute resolution dropped",
					logger.String("disputeID", d.ID),
				)
				return
			}
		} else {
			err = s.tracker.Add(d)
		}
	} else {
		err = s.tracker.Add(d)
	}
	if err != nil {
		s.logger.Warn(ctx, "rejected malformed push dispute",
			logger.String("disputeID", d.ID),
			logger.Error(err),
		)
		return
	}

	s.buffer.MarkDisputed(d.EventID)
	s.lastUpdated = time.Now().UTC()
}

// HandleStats applies one push-delivered stats update. Stale updates are
// discarded silently; the push stream guarantees no ordering.
func (s *Service) HandleStats(ctx context.Context, snap model.StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped() {
		return
	}

	if err := s.stats.Apply(snap); err != nil {
		if !errors.Is(err, stats.ErrStale) {
			s.logger.Warn(ctx, "rejected malformed stats update", logger.Error(err))
		}
		return
	}
	s.lastUpdated = time.Now().UTC()
}

// FileDispute inserts a pending dispute optimistically and submits the
// creation request upstream. The pending entry stays either way; the
// returned error only reports the outbound side so the caller can surface
// it. Status is authority-owned from this point on.
func (s *Service) FileDispute(ctx context.Context, eventID, reporterID, reason string) (model.CombatDispute, error) {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(reporterID) == "" {
		return model.CombatDispute{}, dispute.ErrMalformed
	}

	d := model.CombatDispute{
		ID:         uuid.NewString(),
		EventID:    eventID,
		ReporterID: reporterID,
		Reason:     reason,
		Status:     model.DisputePending,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	if s.stopped() {
		s.mu.Unlock()
		return model.CombatDispute{}, ErrStopped
	}
	if err := s.tracker.Add(d); err != nil {
		s.mu.Unlock()
		return model.CombatDispute{}, err
	}
	s.buffer.MarkDisputed(eventID)
	s.lastUpdated = time.Now().UTC()
	s.mu.Unlock()

	if err := s.authority.FileDispute(ctx, d); err != nil {
		s.logger.Warn(ctx, "dispute creation not acknowledged; kept pending locally",
			logger.String("disputeID", d.ID),
			logger.Error(err),
		)
		return d, err
	}
	return d, nil
}

// ResolveDispute asks the authority to finalize a dispute and applies the
// transition only on acknowledgment; resolutions are never optimistic.
func (s *Service) ResolveDispute(ctx context.Context, id string, outcome model.DisputeStatus) error {
	if !outcome.Final() {
		return dispute.ErrMalformed
	}

	s.mu.Lock()
	held, ok := s.tracker.Get(id)
	s.mu.Unlock()
	if !ok {
		return dispute.ErrNotFound
	}
	if held.Status.Final() {
		return dispute.ErrConflict
	}

	if err := s.authority.ResolveDispute(ctx, id, outcome); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped() {
		return ErrStopped
	}
	return s.tracker.ApplyResolution(id, outcome)
}

// DispatchIntervention issues an administrative command against one event.
// Conflict, rejection and transient failures propagate to the caller.
func (s *Service) DispatchIntervention(ctx context.Context, eventID string, action model.InterventionAction) error {
	s.mu.Lock()
	if s.stopped() {
		s.mu.Unlock()
		return ErrStopped
	}
	d := s.dispatcher
	s.mu.Unlock()

	// Dispatch runs outside the state lock; it does not block ingestion.
	return d.Dispatch(ctx, eventID, action)
}

// Events returns the buffered events, newest-first.
func (s *Service) Events() []model.CombatEvent {
	if s.buffer == nil {
		return nil
	}
	return s.buffer.Snapshot()
}

// Stats returns the latest accepted aggregate snapshot, or false before
// the first snapshot arrives.
func (s *Service) Stats() (model.StatsSnapshot, bool) {
	if s.stats == nil {
		return model.StatsSnapshot{}, false
	}
	return s.stats.Current()
}

// Rankings returns the ranking rows of the held snapshot.
func (s *Service) Rankings() []model.CombatRanking {
	return s.stats.Rankings()
}

// Disputes returns disputes filtered by status; empty status means all.
func (s *Service) Disputes(status model.DisputeStatus) []model.CombatDispute {
	return s.tracker.List(status)
}

// DisputeCounts returns per-status dispute counts.
func (s *Service) DisputeCounts() map[model.DisputeStatus]int {
	return s.tracker.Counts()
}

// Dispute returns a single dispute by id.
func (s *Service) Dispute(id string) (model.CombatDispute, bool) {
	return s.tracker.Get(id)
}

// LastUpdated returns the time of the last successful state change.
func (s *Service) LastUpdated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastUpdated
}

// Degraded reports whether the poll cycle has failed enough consecutive
// times to consider the view stale.
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.degraded
}

// Status returns controller health for monitoring and the dashboard.
func (s *Service) Status() map[string]interface{} {
	s.mu.Lock()
	started := s.started
	degraded := s.degraded
	failures := s.pollFailures
	lastUpdated := s.lastUpdated
	s.mu.Unlock()

	status := map[string]interface{}{
		"started":         started,
		"degraded":        degraded,
		"poll_failures":   failures,
		"poll_interval":   s.pollInterval.String(),
		"buffer_capacity": s.bufferCapacity,
	}
	if started {
		status["buffered_events"] = s.buffer.Len()
		status["tracked_disputes"] = s.tracker.Len()
		metrics.UpdateBufferSize(s.buffer.Len())
	}
	if !lastUpdated.IsZero() {
		status["last_updated"] = lastUpdated.Format(time.RFC3339)
	}
	return status
}
