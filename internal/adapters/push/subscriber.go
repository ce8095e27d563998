// Package push subscribes to the authority's server-initiated event stream.
//
// The stream is a WebSocket carrying JSON envelopes of three kinds: new
// combat event, new or finalized dispute, and stats update. Delivery is
// at-least-once with no ordering guarantee; deduplication and staleness
// are handled downstream by the reconciliation controller.
package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/pkg/logger"
	"github.com/orbitfall/combatwatch/pkg/metrics"
)

// Message kinds carried in stream envelopes.
const (
	KindCombatEvent = "combat_event"
	KindDispute     = "combat_dispute"
	KindStatsUpdate = "stats_update"
)

// defaultReconnectDelay spaces out redial attempts after a broken stream.
const defaultReconnectDelay = 5 * time.Second

// Message is one envelope on the push stream.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler consumes decoded push messages.
type Handler interface {
	HandleCombatEvent(ctx context.Context, ev model.CombatEvent)
	HandleDispute(ctx context.Context, d model.CombatDispute)
	HandleStats(ctx context.Context, snap model.StatsSnapshot)
}

// Subscriber maintains the WebSocket connection and feeds the handler.
type Subscriber struct {
	url     string
	handler Handler
	dialer  *websocket.Dialer
	delay   time.Duration
	logger  logger.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}
}

// Option applies a configuration option to the Subscriber.
type Option func(*Subscriber)

// WithReconnectDelay sets the pause between redial attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger sets a custom logger for the subscriber.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDialer replaces the WebSocket dialer, mainly for tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Subscriber) {
		if d != nil {
			s.dialer = d
		}
	}
}

// NewSubscriber creates a subscriber for the stream at url.
func NewSubscriber(url string, handler Handler, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:     url,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		delay:   defaultReconnectDelay,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("push")
	}
	return s
}

// Start launches the subscription loop. It returns immediately; the loop
// redials on failure until Stop is called or ctx is canceled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true

	go s.run(ctx)
	return nil
}

// Stop tears down the subscription and waits for the loop to exit.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	<-s.done
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Warn(ctx, "push stream dial failed",
				logger.String("url", s.url),
				logger.Error(err),
			)
			metrics.RecordPushReconnect()
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.logger.Info(ctx, "push stream connected", logger.String("url", s.url))
		s.readLoop(ctx, conn)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			metrics.RecordPushReconnect()
			if !s.sleep(ctx) {
				return
			}
		}
	}
}

// readLoop consumes envelopes until the connection breaks or teardown is
// signaled. A message that fails to decode is dropped, never fatal.
func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when Stop is called.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-s.stopCh:
			_ = conn.Close()
		case <-ctx.Done():
			_ = conn.Close()
		case <-readerDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			case <-ctx.Done():
			default:
				s.logger.Warn(ctx, "push stream read failed", logger.Error(err))
			}
			return
		}
		s.dispatch(ctx, data)
	}
}

func (s *Subscriber) dispatch(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn(ctx, "dropping undecodable push message", logger.Error(err))
		metrics.RecordPushDropped()
		return
	}

	switch msg.Type {
	case KindCombatEvent:
		var ev model.CombatEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			s.logger.Warn(ctx, "dropping malformed combat event", logger.Error(err))
			metrics.RecordPushDropped()
			return
		}
		metrics.RecordPushMessage(KindCombatEvent)
		s.handler.HandleCombatEvent(ctx, ev)
	case KindDispute:
		var d model.CombatDispute
		if err := json.Unmarshal(msg.Payload, &d); err != nil {
			s.logger.Warn(ctx, "dropping malformed dispute", logger.Error(err))
			metrics.RecordPushDropped()
			return
		}
		metrics.RecordPushMessage(KindDispute)
		s.handler.HandleDispute(ctx, d)
	case KindStatsUpdate:
		var snap model.StatsSnapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			s.logger.Warn(ctx, "dropping malformed stats update", logger.Error(err))
			metrics.RecordPushDropped()
			return
		}
		metrics.RecordPushMessage(KindStatsUpdate)
		s.handler.HandleStats(ctx, snap)
	default:
		s.logger.Debug(ctx, "skipping unknown push message type",
			logger.String("type", msg.Type),
		)
		metrics.RecordPushDropped()
	}
}

// sleep waits out the reconnect delay; false means teardown was signaled.
func (s *Subscriber) sleep(ctx context.Context) bool {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
