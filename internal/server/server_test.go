package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tankman61/VibeTrade/internal/broadcast"
	"github.com/Tankman61/VibeTrade/internal/config"
	"github.com/Tankman61/VibeTrade/internal/models"
	"github.com/Tankman61/VibeTrade/internal/router"
)

type fakePipeline struct {
	forced atomic.Int64
}

func (p *fakePipeline) Statistics() router.Statistics {
	return router.Statistics{CurrentRiskScore: 42.5, TotalUpdates: 7}
}

// ForceInterrupt fires once, then reports cooldown suppression.
func (p *fakePipeline) ForceInterrupt() bool {
	return p.forced.Add(1) == 1
}

func (p *fakePipeline) CurrentScore() models.CompositeRiskScore {
	return models.CompositeRiskScore{Value: 42.5, Timestamp: time.Now()}
}

func (p *fakePipeline) History() []models.CompositeRiskScore {
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakePipeline, string) {
	t.Helper()
	audioDir := t.TempDir()
	cfg := &config.Config{}
	cfg.Generation.AudioDir = audioDir
	cfg.Interrupt.Threshold = 75
	cfg.Interrupt.Cooldown = time.Minute
	cfg.Risk.WindowSize = 100
	cfg.Risk.ExchangeWeight = 0.4
	cfg.Risk.PredictionMarketWeight = 0.3
	cfg.Risk.SentimentWeight = 0.3

	pipeline := &fakePipeline{}
	srv := New(cfg, pipeline, broadcast.NewHub(), nil, nil, prometheus.NewRegistry())
	return srv, pipeline, audioDir
}

func getJSON(t *testing.T, ts *httptest.Server, path string) map[string]any {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return body
}

func TestHTTPEndpoints(t *testing.T) {
	srv, _, audioDir := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	root := getJSON(t, ts, "/")
	if root["service"] != "risk-console" {
		t.Errorf("service = %v", root["service"])
	}

	health := getJSON(t, ts, "/healthz")
	if health["status"] != "ok" {
		t.Errorf("health status = %v", health["status"])
	}

	stats := getJSON(t, ts, "/stats")
	inner, ok := stats["statistics"].(map[string]any)
	if !ok || inner["current_risk_score"] != 42.5 {
		t.Errorf("unexpected statistics payload: %v", stats["statistics"])
	}

	cfg := getJSON(t, ts, "/config")
	if cfg["interrupt_threshold"] != 75.0 {
		t.Errorf("interrupt_threshold = %v", cfg["interrupt_threshold"])
	}
	if _, leaked := cfg["openai_api_key"]; leaked {
		t.Error("config endpoint must not expose credentials")
	}

	if err := os.WriteFile(filepath.Join(audioDir, "roast_abcd1234.mp3"), []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Get(ts.URL + "/audio/roast_abcd1234.mp3")
	if err != nil {
		t.Fatalf("GET audio: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("audio status = %d", resp.StatusCode)
	}
}

func TestTestInterruptEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/test-interrupt", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("first force: status = %d, want 200", resp.StatusCode)
	}

	resp, err = ts.Client().Post(ts.URL+"/test-interrupt", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second force: status = %d, want 429", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/stats", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env.Type, env.Payload
}

func TestWebSocketSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	kind, _ := readEnvelope(t, conn)
	if kind != "CONNECTED" {
		t.Fatalf("greeting type = %q, want CONNECTED", kind)
	}

	if err := conn.WriteJSON(models.ClientMessage{Type: models.ClientGetStatus}); err != nil {
		t.Fatal(err)
	}
	kind, payload := readEnvelope(t, conn)
	if kind != "STATUS" {
		t.Fatalf("reply type = %q, want STATUS", kind)
	}
	if payload["is_running"] != true {
		t.Errorf("is_running = %v", payload["is_running"])
	}
	if payload["connections"] != 1.0 {
		t.Errorf("connections = %v, want 1", payload["connections"])
	}

	// First force fires silently; the second is suppressed and answered
	// with an alert.
	if err := conn.WriteJSON(models.ClientMessage{Type: models.ClientForceInterrupt}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(models.ClientMessage{Type: models.ClientForceInterrupt}); err != nil {
		t.Fatal(err)
	}
	kind, payload = readEnvelope(t, conn)
	if kind != "ALERT" {
		t.Fatalf("reply type = %q, want ALERT", kind)
	}
	if payload["alert_type"] != "INTERRUPT_SUPPRESSED" {
		t.Errorf("alert_type = %v", payload["alert_type"])
	}
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readEnvelope(t, conn) // greeting
	if srv.hub.Count() != 1 {
		t.Fatalf("hub count = %d, want 1", srv.hub.Count())
	}

	conn.Close()
	deadline := time.After(2 * time.Second)
	for srv.hub.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("connection was not unregistered after close")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
