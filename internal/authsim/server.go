package authsim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orbitfall/combatwatch/internal/adapters/push"
	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// Server is an in-process combat authority. It backs cmd/authsim and the
// controller's integration tests.
type Server struct {
	mu       sync.Mutex
	events   []model.CombatEvent
	disputes map[string]model.CombatDispute
	seq      int64

	httpSrv  *httptest.Server
	upgrader websocket.Upgrader

	connsMu sync.Mutex
	conns   map[*websocket.Conn]struct{}
}

// NewServer starts a simulator on an ephemeral port.
func NewServer() *Server {
	s := &Server{
		disputes: make(map[string]model.CombatDispute),
		conns:    make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/live-events", s.handleLiveEvents)
	mux.HandleFunc("/stats-snapshot", s.handleStatsSnapshot)
	mux.HandleFunc("/disputes", s.handleDisputes)
	mux.HandleFunc("/disputes/", s.handleDisputeResolution)
	mux.HandleFunc("/events/", s.handleIntervene)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpSrv = httptest.NewServer(mux)
	return s
}

// URL returns the simulator's base URL for the poll client.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// PushURL returns the WebSocket endpoint for the push subscriber.
func (s *Server) PushURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws"
}

// Close shuts the simulator down.
func (s *Server) Close() {
	s.connsMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = make(map[*websocket.Conn]struct{})
	s.connsMu.Unlock()

	s.httpSrv.Close()
}

// Tick generates one combat event, records it, and pushes it out.
func (s *Server) Tick() model.CombatEvent {
	ev := GenerateEvent()
	s.AddEvent(ev)
	s.Broadcast(push.KindCombatEvent, ev)
	return ev
}

// AddEvent records an event for the next poll response.
func (s *Server) AddEvent(ev model.CombatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
}

// AddDispute records a dispute for the next poll response.
func (s *Server) AddDispute(d model.CombatDispute) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disputes[d.ID] = d
}

// NextSnapshot advances the sequence and returns a fresh stats snapshot.
func (s *Server) NextSnapshot() model.StatsSnapshot {
	s.mu.Lock()
	s.seq++
	snap := GenerateStats(s.seq, len(s.events))
	s.mu.Unlock()
	return snap
}

// Subscribers returns the number of connected push subscribers.
func (s *Server) Subscribers() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	return len(s.conns)
}

// Broadcast sends one push envelope to every connected subscriber.
func (s *Server) Broadcast(kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg, err := json.Marshal(push.Message{Type: kind, Payload: raw})
	if err != nil {
		return
	}

	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = conn.Close()
			delete(s.conns, conn)
		}
	}
}

// Run emits events and snapshots on a fixed cadence until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
			snap := s.NextSnapshot()
			s.Broadcast(push.KindStatsUpdate, snap)
		}
	}
}

func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	events := append([]model.CombatEvent(nil), s.events...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStatsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.NextSnapshot())
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		disputes := make([]model.CombatDispute, 0, len(s.disputes))
		for _, d := range s.disputes {
			disputes = append(disputes, d)
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, disputes)
	case http.MethodPost:
		var d model.CombatDispute
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"code": "bad_request", "message": "undecodable dispute",
			})
			return
		}
		s.AddDispute(d)
		writeJSON(w, http.StatusCreated, d)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDisputeResolution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/disputes/")
	id, verb, ok := strings.Cut(rest, "/")
	if !ok || verb != "resolution" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Outcome model.DisputeStatus `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Outcome.Final() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code": "bad_request", "message": "invalid outcome",
		})
		return
	}

	s.mu.Lock()
	d, exists := s.disputes[id]
	if exists && d.Status == model.DisputePending {
		d.Status = req.Outcome
		s.disputes[id] = d
	}
	s.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code": "not_found", "message": "unknown dispute",
		})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleIntervene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/events/")
	eventID, verb, ok := strings.Cut(rest, "/")
	if !ok || verb != "intervene" {
		http.NotFound(w, r)
		return
	}

	var cmd model.InterventionCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || !cmd.Action.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code": "bad_request", "message": "invalid intervention action",
		})
		return
	}

	s.mu.Lock()
	known := false
	for i := range s.events {
		if s.events[i].ID == eventID {
			known = true
			break
		}
	}
	s.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"code": "unknown_event", "message": "no such combat event",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	// Drain control frames; the stream is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.connsMu.Lock()
				delete(s.conns, conn)
				s.connsMu.Unlock()
				_ = conn.Close()
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
