// Package status implements the loopback-only diagnostics HTTP surface
// (SPEC_FULL.md §4.9): health, the telemetry snapshot, Prometheus
// metrics, and a websocket that live-pushes event bus activity.
// Grounded on the teacher's http_server/http_server.go (chi.Mux, a
// graceful-shutdown-aware Start) and http_server/events.go (one
// handler per event-notification concern), swapping its SSE transport
// for gorilla/websocket per SPEC_FULL.md's explicit choice, and its
// multi-robot REST routes for the single-session health/telemetry
// shape this daemon actually has.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Nat3z/Daybreak/internal/eventbus"
	"github.com/Nat3z/Daybreak/internal/logging"
	"github.com/Nat3z/Daybreak/internal/metrics"
)

// Source abstracts the Router state the surface reports on, so this
// package doesn't import router (which would create a cycle once the
// router needs the surface's address for logging).
type Source interface {
	RunState() (state string, connected bool)
	Telemetry() ([]byte, bool)
}

type Server struct {
	addr string
	src  Source
	m    *metrics.Metrics
	bus  *eventbus.Bus

	router *chi.Mux
	srv    *http.Server
}

var upgrader = websocket.Upgrader{
	// Diagnostics surface is loopback-only; any origin is fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func New(addr string, src Source, m *metrics.Metrics, bus *eventbus.Bus) *Server {
	s := &Server{addr: addr, src: src, m: m, bus: bus}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/telemetry", s.handleTelemetry)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/ws/events", s.handleEvents)
	s.router = r
	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled. A bind
// failure is returned but is meant to be treated as non-fatal by the
// caller (§4.9: the rendezvous sockets remain authoritative).
func (s *Server) Run(ctx context.Context) error {
	if s.addr == "" {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		logging.DebugPrint("status: listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state, connected := s.src.RunState()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"robot_connected": connected,
		"run_state":       state,
	})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	data, ok := s.src.Telemetry()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.m.WritePrometheus(w)
}

// handleEvents upgrades to a websocket and streams one JSON line per
// event bus publication until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.DebugPrint("status: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	msgs := make(chan eventMessage, 16)
	handler := func(e eventbus.Event) {
		select {
		case msgs <- eventMessage{Type: e.Type(), Data: e.Data()}:
		default:
			// slow client: drop rather than block Publish (§5 backpressure policy)
		}
	}

	subs := []*eventbus.Subscriber{
		s.bus.Subscribe(eventbus.TelemetryUpdated, nil, handler),
		s.bus.Subscribe(eventbus.RunStateChanged, nil, handler),
		s.bus.Subscribe(eventbus.LogAppended, nil, handler),
	}
	defer func() {
		s.bus.Unsubscribe(eventbus.TelemetryUpdated, subs[0])
		s.bus.Unsubscribe(eventbus.RunStateChanged, subs[1])
		s.bus.Unsubscribe(eventbus.LogAppended, subs[2])
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case m := <-msgs:
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
	}
}

type eventMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
