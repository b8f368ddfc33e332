package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tankman61/VibeTrade/internal/models"
)

func TestDecodeExchangeTrade(t *testing.T) {
	metric, value, ok, err := DecodeExchangeTrade([]byte(`{"e":"trade","s":"BTCUSDT","p":"43250.50"}`))
	if err != nil || !ok {
		t.Fatalf("expected valid trade, got ok=%v err=%v", ok, err)
	}
	if metric != "BTCUSDT" || value != 43250.50 {
		t.Errorf("unexpected decode result: %s %f", metric, value)
	}

	// Subscription ack: skipped, not malformed.
	if _, _, ok, err := DecodeExchangeTrade([]byte(`{"result":null,"id":1}`)); ok || err != nil {
		t.Errorf("ack frame should be skipped silently, got ok=%v err=%v", ok, err)
	}

	// Garbage price: malformed.
	if _, _, _, err := DecodeExchangeTrade([]byte(`{"p":"not-a-number"}`)); err == nil {
		t.Error("expected error for unparseable price")
	}
	if _, _, _, err := DecodeExchangeTrade([]byte(`{{{`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecodeMarketProbability(t *testing.T) {
	metric, value, ok, err := DecodeMarketProbability([]byte(`{"market_id":"mkt-1","probability":0.75}`))
	if err != nil || !ok {
		t.Fatalf("expected valid update, got ok=%v err=%v", ok, err)
	}
	if metric != "mkt-1" || value != 0.75 {
		t.Errorf("unexpected decode result: %s %f", metric, value)
	}

	if _, _, ok, err := DecodeMarketProbability([]byte(`{"type":"heartbeat"}`)); ok || err != nil {
		t.Errorf("heartbeat should be skipped silently, got ok=%v err=%v", ok, err)
	}
	if _, _, _, err := DecodeMarketProbability([]byte(`{"probability":1.5}`)); err == nil {
		t.Error("expected error for out-of-range probability")
	}
}

func TestDecodeSentiment(t *testing.T) {
	_, value, ok, err := DecodeSentiment([]byte(`{"sentiment":-0.4,"source":"reddit"}`))
	if err != nil || !ok {
		t.Fatalf("expected valid sentiment, got ok=%v err=%v", ok, err)
	}
	if value != -0.4 {
		t.Errorf("unexpected sentiment %f", value)
	}

	// Alternative 0-100 score format converts to [-1,1].
	_, value, ok, err = DecodeSentiment([]byte(`{"score":75,"source":"reddit"}`))
	if err != nil || !ok {
		t.Fatalf("expected valid score, got ok=%v err=%v", ok, err)
	}
	if value != 0.5 {
		t.Errorf("score 75 should convert to 0.5, got %f", value)
	}

	if _, _, _, err := DecodeSentiment([]byte(`{"sentiment":3.0}`)); err == nil {
		t.Error("expected error for out-of-range sentiment")
	}
}

// collector gathers emitted points.
type collector struct {
	mu     sync.Mutex
	points []models.DataPoint
}

func (c *collector) emit(p models.DataPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = append(c.points, p)
}

func (c *collector) snapshot() []models.DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.DataPoint(nil), c.points...)
}

func TestSyntheticEmitsTaggedPoints(t *testing.T) {
	s := NewSynthetic(models.SourcePredictionMarket, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var c collector
	s.Run(ctx, c.emit)

	points := c.snapshot()
	if len(points) < 3 {
		t.Fatalf("expected several synthetic points, got %d", len(points))
	}
	for _, p := range points {
		if !p.Synthetic {
			t.Fatal("synthetic points must be tagged")
		}
		if p.Source != models.SourcePredictionMarket {
			t.Fatalf("unexpected source %s", p.Source)
		}
		if p.Value < 0.05 || p.Value > 0.95 {
			t.Fatalf("synthetic probability %f escaped its bounds", p.Value)
		}
	}
}

func TestLiveFallsBackToSyntheticAfterFailureBudget(t *testing.T) {
	fallback := NewSynthetic(models.SourceExchange, 5*time.Millisecond)
	l := NewLive(models.SourceExchange, DecodeExchangeTrade, fallback, LiveOptions{
		URL:           "ws://127.0.0.1:1", // nothing listens here
		FailureBudget: 2,
		ReconnectMin:  time.Millisecond,
		ReconnectMax:  2 * time.Millisecond,
		ReadTimeout:   time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var c collector
	l.Run(ctx, c.emit)

	points := c.snapshot()
	if len(points) == 0 {
		t.Fatal("listener must keep emitting synthetic points after upstream failure")
	}
	for _, p := range points {
		if !p.Synthetic {
			t.Fatal("fallback points must be tagged synthetic")
		}
	}
	if got := l.Status().Mode; got != ModeSynthetic {
		t.Errorf("listener should report synthetic mode, got %q", got)
	}
}

func TestLiveStreamsAndCountsMalformed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"e":"trade","s":"BTCUSDT","p":"43250.50"}`,
			`{"p":"garbage"}`,
			`{"e":"trade","s":"BTCUSDT","p":"43300.00"}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	fallback := NewSynthetic(models.SourceExchange, time.Second)
	var malformed atomic.Int64
	l := NewLive(models.SourceExchange, DecodeExchangeTrade, fallback, LiveOptions{
		URL:           url,
		FailureBudget: 3,
		ReconnectMin:  time.Millisecond,
		ReconnectMax:  2 * time.Millisecond,
		ReadTimeout:   time.Second,
		OnMalformed: func(source models.Source) {
			if source == models.SourceExchange {
				malformed.Add(1)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c collector
	done := make(chan struct{})
	go func() {
		l.Run(ctx, c.emit)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if len(c.snapshot()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for points, got %d", len(c.snapshot()))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	points := c.snapshot()
	if points[0].Value != 43250.50 || points[1].Value != 43300.00 {
		t.Errorf("unexpected streamed values: %f, %f", points[0].Value, points[1].Value)
	}
	for _, p := range points[:2] {
		if p.Synthetic {
			t.Error("live points must not be tagged synthetic")
		}
	}
	if got := l.Status().Dropped; got != 1 {
		t.Errorf("expected 1 malformed payload counted, got %d", got)
	}
	if got := malformed.Load(); got != 1 {
		t.Errorf("expected 1 malformed callback, got %d", got)
	}
}
