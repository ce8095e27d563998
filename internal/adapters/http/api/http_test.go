package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/orbitfall/combatwatch/internal/adapters/authority"
	"github.com/orbitfall/combatwatch/internal/adapters/http/api"
	"github.com/orbitfall/combatwatch/internal/dispatch"
	"github.com/orbitfall/combatwatch/internal/domain/dispute"
	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// fakeDeps is a scriptable controller stand-in for handler tests.
type fakeDeps struct {
	events   []model.CombatEvent
	snap     model.StatsSnapshot
	hasSnap  bool
	rankings []model.CombatRanking
	disputes []model.CombatDispute
	counts   map[model.DisputeStatus]int
	degraded bool
	updated  time.Time

	fileResult   model.CombatDispute
	fileErr      error
	resolveErr   error
	interveneErr error

	lastResolved   string
	lastOutcome    model.DisputeStatus
	lastEventID    string
	lastAction     model.InterventionAction
	lastListStatus model.DisputeStatus
}

func (f *fakeDeps) Events() []model.CombatEvent { return f.events }

func (f *fakeDeps) Stats() (model.StatsSnapshot, bool) { return f.snap, f.hasSnap }

func (f *fakeDeps) Rankings() []model.CombatRanking { return f.rankings }

func (f *fakeDeps) Disputes(status model.DisputeStatus) []model.CombatDispute {
	f.lastListStatus = status
	return f.disputes
}

func (f *fakeDeps) DisputeCounts() map[model.DisputeStatus]int { return f.counts }

func (f *fakeDeps) FileDispute(_ context.Context, eventID, reporterID, reason string) (model.CombatDispute, error) {
	return f.fileResult, f.fileErr
}

func (f *fakeDeps) ResolveDispute(_ context.Context, id string, outcome model.DisputeStatus) error {
	f.lastResolved = id
	f.lastOutcome = outcome
	return f.resolveErr
}

func (f *fakeDeps) DispatchIntervention(_ context.Context, eventID string, action model.InterventionAction) error {
	f.lastEventID = eventID
	f.lastAction = action
	return f.interveneErr
}

func (f *fakeDeps) LastUpdated() time.Time { return f.updated }

func (f *fakeDeps) Degraded() bool { return f.degraded }

func (f *fakeDeps) Status() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestServer(deps *fakeDeps) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestEventsEndpoints(t *testing.T) {
	Convey("Given a monitor with buffered events", t, func() {
		deps := &fakeDeps{
			events: []model.CombatEvent{
				{ID: "evt-2", Timestamp: time.Now().UTC()},
				{ID: "evt-1", Timestamp: time.Now().UTC().Add(-time.Minute)},
			},
			updated:  time.Now().UTC(),
			degraded: true,
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /events returns the feed with freshness markers", func() {
			var resp struct {
				Events      []model.CombatEvent `json:"events"`
				LastUpdated string              `json:"last_updated"`
				Degraded    bool                `json:"degraded"`
			}
			code := getJSON(t, srv.URL+"/events", &resp)

			So(code, ShouldEqual, http.StatusOK)
			So(len(resp.Events), ShouldEqual, 2)
			So(resp.Events[0].ID, ShouldEqual, "evt-2")
			So(resp.Degraded, ShouldBeTrue)
			So(resp.LastUpdated, ShouldNotBeEmpty)
		})

		Convey("GET /events?limit=1 trims the feed", func() {
			var resp struct {
				Events []model.CombatEvent `json:"events"`
			}
			code := getJSON(t, srv.URL+"/events?limit=1", &resp)

			So(code, ShouldEqual, http.StatusOK)
			So(len(resp.Events), ShouldEqual, 1)
		})

		Convey("GET /events?limit=bogus is a bad request", func() {
			So(getJSON(t, srv.URL+"/events?limit=bogus", nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /events/{id}/intervene dispatches the command", func() {
			code := postJSON(t, srv.URL+"/events/evt-1/intervene", `{"action":"pause"}`, nil)

			So(code, ShouldEqual, http.StatusOK)
			So(deps.lastEventID, ShouldEqual, "evt-1")
			So(deps.lastAction, ShouldEqual, model.InterventionPause)
		})

		Convey("Intervention failures map onto the right statuses", func() {
			cases := []struct {
				err  error
				code int
			}{
				{dispatch.ErrInFlight, http.StatusConflict},
				{fmt.Errorf("%w: combat already ended", authority.ErrRejected), http.StatusUnprocessableEntity},
				{fmt.Errorf("%w: timeout", authority.ErrUnavailable), http.StatusBadGateway},
				{dispatch.ErrInvalidAction, http.StatusBadRequest},
			}
			for _, tc := range cases {
				deps.interveneErr = tc.err
				code := postJSON(t, srv.URL+"/events/evt-1/intervene", `{"action":"pause"}`, nil)
				So(code, ShouldEqual, tc.code)
			}
		})

		Convey("A rejected intervention carries the verbatim reason", func() {
			deps.interveneErr = fmt.Errorf("%w: combat already ended", authority.ErrRejected)

			var resp struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			code := postJSON(t, srv.URL+"/events/evt-1/intervene", `{"action":"end"}`, &resp)

			So(code, ShouldEqual, http.StatusUnprocessableEntity)
			So(resp.Code, ShouldEqual, "rejected")
			So(resp.Message, ShouldContainSubstring, "combat already ended")
		})
	})
}

func TestStatsEndpoints(t *testing.T) {
	Convey("Given a monitor before the first snapshot", t, func() {
		deps := &fakeDeps{}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /stats is unavailable, not empty", func() {
			So(getJSON(t, srv.URL+"/stats", nil), ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	Convey("Given a monitor holding a snapshot", t, func() {
		deps := &fakeDeps{
			hasSnap: true,
			snap: model.StatsSnapshot{
				Sequence: 7,
				TakenAt:  time.Now().UTC(),
				Stats:    model.CombatStats{TotalBattles: 12},
			},
			rankings: []model.CombatRanking{
				{ParticipantID: "pilot-a", Rank: 1, TotalDamage: 5000},
			},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /stats returns the aggregate with its sequence", func() {
			var resp struct {
				Sequence int64             `json:"sequence"`
				Stats    model.CombatStats `json:"stats"`
			}
			code := getJSON(t, srv.URL+"/stats", &resp)

			So(code, ShouldEqual, http.StatusOK)
			So(resp.Sequence, ShouldEqual, 7)
			So(resp.Stats.TotalBattles, ShouldEqual, 12)
		})

		Convey("GET /rankings returns the ranking rows", func() {
			var resp struct {
				Rankings []model.CombatRanking `json:"rankings"`
			}
			code := getJSON(t, srv.URL+"/rankings", &resp)

			So(code, ShouldEqual, http.StatusOK)
			So(len(resp.Rankings), ShouldEqual, 1)
			So(resp.Rankings[0].ParticipantID, ShouldEqual, "pilot-a")
		})
	})
}

func TestDisputeEndpoints(t *testing.T) {
	Convey("Given a monitor with tracked disputes", t, func() {
		deps := &fakeDeps{
			disputes: []model.CombatDispute{
				{ID: "d-1", EventID: "evt-1", Status: model.DisputePending},
			},
			counts: map[model.DisputeStatus]int{
				model.DisputePending:  1,
				model.DisputeResolved: 2,
			},
			fileResult: model.CombatDispute{
				ID: "d-new", EventID: "evt-1", Status: model.DisputePending,
			},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /disputes lists, with optional status filtering", func() {
			var resp struct {
				Disputes []model.CombatDispute `json:"disputes"`
			}
			code := getJSON(t, srv.URL+"/disputes?status=pending", &resp)

			So(code, ShouldEqual, http.StatusOK)
			So(len(resp.Disputes), ShouldEqual, 1)
			So(deps.lastListStatus, ShouldEqual, model.DisputePending)
		})

		Convey("GET /disputes with an unknown status is a bad request", func() {
			So(getJSON(t, srv.URL+"/disputes?status=meditating", nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /disputes/counts backs the pending badge", func() {
			var resp map[string]int
			code := getJSON(t, srv.URL+"/disputes/counts", &resp)

			So(code, ShouldEqual, http.StatusOK)
			So(resp["pending"], ShouldEqual, 1)
			So(resp["resolved"], ShouldEqual, 2)
			So(resp["rejected"], ShouldEqual, 0)
		})

		Convey("POST /disputes files a dispute", func() {
			body := `{"event_id":"evt-1","reporter_id":"pilot-007","reason":"looks wrong"}`
			var resp struct {
				Dispute model.CombatDispute `json:"dispute"`
			}
			code := postJSON(t, srv.URL+"/disputes", body, &resp)

			So(code, ShouldEqual, http.StatusCreated)
			So(resp.Dispute.ID, ShouldEqual, "d-new")
		})

		Convey("POST /disputes without a reporter is a bad request", func() {
			body := `{"event_id":"evt-1","reason":"anonymous"}`
			So(postJSON(t, srv.URL+"/disputes", body, nil), ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /disputes kept pending locally after an upstream failure", func() {
			deps.fileErr = fmt.Errorf("%w: timeout", authority.ErrUnavailable)

			body := `{"event_id":"evt-1","reporter_id":"pilot-007","reason":"looks wrong"}`
			var resp struct {
				Dispute model.CombatDispute `json:"dispute"`
				Warning string              `json:"warning"`
			}
			code := postJSON(t, srv.URL+"/disputes", body, &resp)

			So(code, ShouldEqual, http.StatusAccepted)
			So(resp.Dispute.ID, ShouldEqual, "d-new")
			So(resp.Warning, ShouldContainSubstring, "timeout")
		})

		Convey("POST /disputes/{id}/resolution finalizes a dispute", func() {
			code := postJSON(t, srv.URL+"/disputes/d-1/resolution", `{"outcome":"resolved"}`, nil)

			So(code, ShouldEqual, http.StatusOK)
			So(deps.lastResolved, ShouldEqual, "d-1")
			So(deps.lastOutcome, ShouldEqual, model.DisputeResolved)
		})

		Convey("Resolution failures map onto the right statuses", func() {
			cases := []struct {
				err  error
				code int
			}{
				{dispute.ErrConflict, http.StatusConflict},
				{dispute.ErrNotFound, http.StatusNotFound},
				{dispute.ErrMalformed, http.StatusBadRequest},
				{fmt.Errorf("%w: 502", authority.ErrUnavailable), http.StatusBadGateway},
			}
			for _, tc := range cases {
				deps.resolveErr = tc.err
				code := postJSON(t, srv.URL+"/disputes/d-1/resolution", `{"outcome":"resolved"}`, nil)
				So(code, ShouldEqual, tc.code)
			}
		})
	})
}

func TestDashboardSummary(t *testing.T) {
	Convey("Given a monitor with a populated view", t, func() {
		deps := &fakeDeps{
			events: []model.CombatEvent{
				{ID: "evt-1", Category: model.CategoryPlayerVsPlayer, Disputed: true},
				{ID: "evt-2", Category: model.CategoryFleetBattle},
				{ID: "evt-3", Category: model.CategoryPlayerVsPlayer},
			},
			hasSnap: true,
			snap:    model.StatsSnapshot{Sequence: 3, Stats: model.CombatStats{TotalBattles: 9}},
			counts:  map[model.DisputeStatus]int{model.DisputePending: 1},
			updated: time.Now().UTC(),
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /dashboard-summary combines the key reads", func() {
			var resp map[string]any
			code := getJSON(t, srv.URL+"/dashboard-summary", &resp)

			So(code, ShouldEqual, http.StatusOK)

			events := resp["events"].(map[string]any)
			So(events["buffered"], ShouldEqual, float64(3))
			So(events["disputed"], ShouldEqual, float64(1))

			So(resp["stats_sequence"], ShouldEqual, float64(3))
			So(resp["last_updated"], ShouldNotBeEmpty)
			So(resp["degraded"], ShouldBeFalse)
		})
	})
}

func TestHealth(t *testing.T) {
	Convey("Given a running API server", t, func() {
		srv := newTestServer(&fakeDeps{})
		defer srv.Close()

		Convey("GET /healthz answers ok", func() {
			So(getJSON(t, srv.URL+"/healthz", nil), ShouldEqual, http.StatusOK)
		})

		Convey("GET /metrics exposes the registry", func() {
			resp, err := http.Get(srv.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}
