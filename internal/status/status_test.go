package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nat3z/Daybreak/internal/eventbus"
	"github.com/Nat3z/Daybreak/internal/metrics"
)

type fakeSource struct {
	state     string
	connected bool
	telemetry []byte
	hasData   bool
}

func (f *fakeSource) RunState() (string, bool)   { return f.state, f.connected }
func (f *fakeSource) Telemetry() ([]byte, bool) { return f.telemetry, f.hasData }

func TestHealthzReportsRunState(t *testing.T) {
	src := &fakeSource{state: "TELEOP", connected: true}
	s := New("", src, metrics.New(), eventbus.New())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["run_state"] != "TELEOP" || body["robot_connected"] != true {
		t.Errorf("body = %+v", body)
	}
}

func TestTelemetryNoDataReturns204(t *testing.T) {
	src := &fakeSource{hasData: false}
	s := New("", src, metrics.New(), eventbus.New())

	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestTelemetryReturnsSnapshotBytes(t *testing.T) {
	src := &fakeSource{hasData: true, telemetry: []byte{1, 2, 3}}
	s := New("", src, metrics.New(), eventbus.New())

	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != string([]byte{1, 2, 3}) {
		t.Errorf("status=%d body=%v", rec.Code, rec.Body.Bytes())
	}
}

func TestWebsocketEventsStreamsPublications(t *testing.T) {
	bus := eventbus.New()
	src := &fakeSource{}
	s := New("127.0.0.1:0", src, metrics.New(), bus)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	bus.PublishData(eventbus.RunStateChanged, "AUTO")

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg eventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	if msg.Type != eventbus.RunStateChanged || msg.Data != "AUTO" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestRunWithEmptyAddrReturnsNilOnCancel(t *testing.T) {
	s := New("", &fakeSource{}, metrics.New(), eventbus.New())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
