package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linesight/linesight/internal/api"
	"github.com/linesight/linesight/internal/config"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/store"
	wsHub "github.com/linesight/linesight/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func testPipeline(t *testing.T) *api.Pipeline {
	t.Helper()
	p, err := api.NewPipeline(config.AnalysisConfig{
		StageChain:        []string{"A", "B", "C"},
		RepairStages:      []string{"REPAIR"},
		MaxCycleSeconds:   3600,
		CapMinutes:        1440,
		ThresholdMinutes:  60,
		TimeWindowMinutes: 5,
		MinBatchSize:      3,
		GridStep:          10,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func seedLine(st *store.Store, line string) {
	now := time.Now().UTC().Truncate(time.Second)
	st.Replace(line, []event.Visit{
		{UnitID: "u1", Stage: "A", Timestamp: now.Add(-30 * time.Minute), Line: line},
		{UnitID: "u1", Stage: "B", Timestamp: now.Add(-25 * time.Minute), Line: line},
		{UnitID: "u1", Stage: "C", Timestamp: now.Add(-20 * time.Minute), Line: line},
	})
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cleanup function.
func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, testPipeline(t), nil, testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateOverview(t *testing.T) {
	st := store.New(5 * time.Minute)
	seedLine(st, "SMT-1")
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != "overview" {
		t.Errorf("event: got %v, want overview", m["event"])
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	if data["generated_at"] == nil || data["generated_at"] == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_MessageContainsLines(t *testing.T) {
	st := store.New(5 * time.Minute)
	seedLine(st, "SMT-1")
	seedLine(st, "SMT-2")
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	json.Unmarshal(msg, &m) //nolint:errcheck
	data := m["data"].(map[string]interface{})
	lines, ok := data["lines"].([]interface{})
	if !ok {
		t.Fatal("lines: missing or wrong type")
	}
	if len(lines) != 2 {
		t.Errorf("lines: got %d, want 2", len(lines))
	}
	first := lines[0].(map[string]interface{})
	if first["line"] != "SMT-1" {
		t.Errorf("lines[0]: got %v, want SMT-1 (sorted)", first["line"])
	}
	if _, ok := first["flow_summary"]; !ok {
		t.Error("flow_summary: missing")
	}
}

func TestHub_EmptyStore_EmptyLines(t *testing.T) {
	wsURL, _, _ := startHub(t, store.New(5*time.Minute))
	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	json.Unmarshal(msg, &m) //nolint:errcheck
	data := m["data"].(map[string]interface{})
	lines := data["lines"].([]interface{})
	if len(lines) != 0 {
		t.Errorf("lines: got %d, want 0", len(lines))
	}
}

func TestHub_CountClients_SingleClient(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.New(5*time.Minute))

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume initial message

	// Give the hub a moment to register the client.
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.New(5*time.Minute))

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.New(5*time.Minute))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := store.New(5 * time.Minute)
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate overview (empty store)

	// Add a line after connect.
	seedLine(st, "SMT-9")

	// The next tick should broadcast a message with the new line.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("waiting for tick broadcast: %v", err)
	}

	var m map[string]interface{}
	json.Unmarshal(msg, &m) //nolint:errcheck
	data := m["data"].(map[string]interface{})
	lines := data["lines"].([]interface{})
	if len(lines) != 1 {
		t.Errorf("tick broadcast: got %d lines, want 1", len(lines))
	}
	l := lines[0].(map[string]interface{})
	if l["line"] != "SMT-9" {
		t.Errorf("line: got %v, want SMT-9", l["line"])
	}
}

func TestHub_AllClientsReceiveBroadcast(t *testing.T) {
	st := store.New(5 * time.Minute)
	seedLine(st, "SMT-1")
	wsURL, _, _ := startHub(t, st)

	conns := make([]*websocket.Conn, 3)
	for i := 0; i < 3; i++ {
		conns[i] = dial(t, wsURL)
	}

	// All three should receive the initial overview.
	for i, conn := range conns {
		msg := readMessage(t, conn)
		var m map[string]interface{}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Errorf("client %d: unmarshal: %v", i, err)
			continue
		}
		if m["event"] != "overview" {
			t.Errorf("client %d: event: got %v, want overview", i, m["event"])
		}
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, store.New(5*time.Minute))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel() // signal shutdown

	// After cancel, hub should close all clients.
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(store.New(5*time.Minute), testPipeline(t), nil, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers → 400
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
