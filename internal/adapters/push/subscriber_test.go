package push_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/orbitfall/combatwatch/internal/adapters/push"
	"github.com/orbitfall/combatwatch/internal/domain/model"
	"github.com/orbitfall/combatwatch/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

type recordingHandler struct {
	mu       sync.Mutex
	events   []model.CombatEvent
	disputes []model.CombatDispute
	stats    []model.StatsSnapshot
}

func (h *recordingHandler) HandleCombatEvent(_ context.Context, ev model.CombatEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) HandleDispute(_ context.Context, d model.CombatDispute) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disputes = append(h.disputes, d)
}

func (h *recordingHandler) HandleStats(_ context.Context, snap model.StatsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = append(h.stats, snap)
}

func (h *recordingHandler) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events), len(h.disputes), len(h.stats)
}

// streamServer upgrades one connection at a time and writes the queued
// raw frames to it, then holds the connection open until the test ends.
func streamServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		// Keep reading so the connection stays up until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func envelope(t *testing.T, kind string, payload any) []byte {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(push.Message{Type: kind, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestSubscriber(t *testing.T) {
	ctx := context.Background()

	Convey("Given a push stream carrying all three message kinds", t, func() {
		frames := [][]byte{
			envelope(t, push.KindCombatEvent, model.CombatEvent{
				ID: "evt-1", Timestamp: time.Now().UTC(), Category: model.CategoryPlayerVsPlayer,
			}),
			envelope(t, push.KindDispute, model.CombatDispute{
				ID: "d-1", EventID: "evt-1", Status: model.DisputePending, CreatedAt: time.Now().UTC(),
			}),
			envelope(t, push.KindStatsUpdate, model.StatsSnapshot{
				Sequence: 9, TakenAt: time.Now().UTC(),
			}),
			[]byte("{not json"),
			envelope(t, "unknown_kind", map[string]string{"x": "y"}),
		}
		srv := streamServer(t, frames)
		defer srv.Close()

		handler := &recordingHandler{}
		sub := push.NewSubscriber(wsURL(srv), handler,
			push.WithReconnectDelay(50*time.Millisecond),
		)

		Convey("When the subscriber runs", func() {
			So(sub.Start(ctx), ShouldBeNil)
			defer sub.Stop()

			Convey("Then each well-formed message reaches its handler", func() {
				ok := waitFor(func() bool {
					e, d, s := handler.counts()
					return e == 1 && d == 1 && s == 1
				})
				So(ok, ShouldBeTrue)

				So(handler.events[0].ID, ShouldEqual, "evt-1")
				So(handler.disputes[0].ID, ShouldEqual, "d-1")
				So(handler.stats[0].Sequence, ShouldEqual, 9)
			})

			Convey("Then malformed and unknown messages are dropped silently", func() {
				waitFor(func() bool {
					e, d, s := handler.counts()
					return e == 1 && d == 1 && s == 1
				})
				e, d, s := handler.counts()
				So(e, ShouldEqual, 1)
				So(d, ShouldEqual, 1)
				So(s, ShouldEqual, 1)
			})
		})

		Convey("When Stop is called", func() {
			So(sub.Start(ctx), ShouldBeNil)
			waitFor(func() bool {
				e, _, _ := handler.counts()
				return e == 1
			})

			sub.Stop()

			Convey("Then the loop exits and a second Stop is harmless", func() {
				sub.Stop()
				e, d, s := handler.counts()
				So(e, ShouldBeLessThanOrEqualTo, 1)
				So(d, ShouldBeLessThanOrEqualTo, 1)
				So(s, ShouldBeLessThanOrEqualTo, 1)
			})
		})
	})

	Convey("Given a stream that drops the connection after one message", t, func() {
		var mu sync.Mutex
		dials := 0

		upgrader := websocket.Upgrader{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			dials++
			n := dials
			mu.Unlock()

			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			frame := envelope(t, push.KindCombatEvent, model.CombatEvent{
				ID: "evt-" + string(rune('0'+n)), Timestamp: time.Now().UTC(),
			})
			_ = conn.WriteMessage(websocket.TextMessage, frame)
			conn.Close()
		}))
		defer srv.Close()

		handler := &recordingHandler{}
		sub := push.NewSubscriber(wsURL(srv), handler,
			push.WithReconnectDelay(20*time.Millisecond),
		)

		Convey("When the subscriber runs", func() {
			So(sub.Start(ctx), ShouldBeNil)
			defer sub.Stop()

			Convey("Then it redials and keeps consuming", func() {
				ok := waitFor(func() bool {
					e, _, _ := handler.counts()
					return e >= 2
				})
				So(ok, ShouldBeTrue)

				mu.Lock()
				So(dials, ShouldBeGreaterThanOrEqualTo, 2)
				mu.Unlock()
			})
		})
	})
}
