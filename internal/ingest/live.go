package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/models"
)

// LiveOptions configures one live WebSocket listener.
type LiveOptions struct {
	URL           string
	Subscribe     []byte // optional message sent right after connect
	FailureBudget int
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	ReadTimeout   time.Duration
	OnDegrade     DegradeCallback
	OnReconnect   func(source models.Source)
	OnMalformed   func(source models.Source)
}

// LiveListener streams one upstream WebSocket feed. After FailureBudget
// consecutive connection failures it degrades to its synthetic fallback
// for the rest of the process lifetime.
type LiveListener struct {
	source   models.Source
	decode   DecodeFunc
	fallback *SyntheticListener
	opts     LiveOptions

	mode      atomic.Value // string
	malformed atomic.Int64
}

// NewLive creates a live listener with a synthetic fallback.
func NewLive(source models.Source, decode DecodeFunc, fallback *SyntheticListener, opts LiveOptions) *LiveListener {
	if opts.FailureBudget < 1 {
		opts.FailureBudget = 5
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	l := &LiveListener{
		source:   source,
		decode:   decode,
		fallback: fallback,
		opts:     opts,
	}
	l.mode.Store(ModeConnecting)
	return l
}

func (l *LiveListener) Source() models.Source { return l.source }

func (l *LiveListener) Status() models.ListenerStatus {
	mode := l.mode.Load().(string)
	return models.ListenerStatus{
		Source:  l.source,
		Up:      mode == ModeLive || mode == ModeSynthetic,
		Mode:    mode,
		Dropped: l.malformed.Load(),
	}
}

// Run connects, streams, and reconnects with bounded exponential backoff.
// It returns only when ctx is cancelled.
func (l *LiveListener) Run(ctx context.Context, emit Emit) {
	delay := l.opts.ReconnectMin
	failures := 0

	for ctx.Err() == nil {
		connected, err := l.listen(ctx, emit)
		if ctx.Err() != nil {
			return
		}
		if connected {
			// A successful session resets the consecutive-failure count.
			failures = 0
			delay = l.opts.ReconnectMin
		}
		failures++
		l.mode.Store(ModeConnecting)
		logger.Warn("%s listener connection lost: %v (failure %d/%d)",
			l.source, err, failures, l.opts.FailureBudget)

		if failures >= l.opts.FailureBudget {
			logger.Warn("%s listener exhausted its failure budget, switching to synthetic data", l.source)
			l.mode.Store(ModeSynthetic)
			if l.opts.OnDegrade != nil {
				l.opts.OnDegrade(l.source)
			}
			l.fallback.Run(ctx, emit)
			return
		}

		if l.opts.OnReconnect != nil {
			l.opts.OnReconnect(l.source)
		}
		logger.Info("%s listener reconnecting in %v", l.source, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.opts.ReconnectMax {
			delay = l.opts.ReconnectMax
		}
	}
}

// listen runs one connection session. It reports whether the connection
// was ever established and the error that ended the session.
func (l *LiveListener) listen(ctx context.Context, emit Emit) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, l.opts.URL, nil)
	if err != nil {
		return false, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	logger.Info("%s listener connected to %s", l.source, l.opts.URL)
	l.mode.Store(ModeLive)

	if len(l.opts.Subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, l.opts.Subscribe); err != nil {
			return true, err
		}
	}

	// Keepalive: extend the read deadline on any traffic, ping on idle.
	readTimeout := l.opts.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(readTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close() // unblocks the read loop
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		metric, value, ok, err := l.decode(payload)
		if err != nil {
			l.malformed.Add(1)
			if l.opts.OnMalformed != nil {
				l.opts.OnMalformed(l.source)
			}
			logger.Debug("%s listener dropped malformed payload: %v", l.source, err)
			continue
		}
		if !ok {
			continue
		}

		emit(models.DataPoint{
			Source:    l.source,
			Metric:    metric,
			Value:     value,
			Timestamp: time.Now(),
		})
	}
}
