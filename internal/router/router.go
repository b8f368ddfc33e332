// Package router wires the pipeline together: it drains the point queue,
// normalizes each update, recomputes the composite risk score, and fans the
// results out to connected clients, storage, and the interrupt path.
package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tankman61/VibeTrade/internal/interrupt"
	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/metrics"
	"github.com/Tankman61/VibeTrade/internal/models"
	"github.com/Tankman61/VibeTrade/internal/normalize"
	"github.com/Tankman61/VibeTrade/internal/risk"
)

// Broadcaster pushes messages to all connected clients.
type Broadcaster interface {
	Broadcast(msg models.Message)
}

// Materializer produces interrupt content for a given score.
type Materializer interface {
	Materialize(ctx context.Context, score models.CompositeRiskScore) (roastText, audioRef string)
}

// EventStore persists points and fired interrupts. Both sinks are best
// effort from the router's perspective: a write failure is logged, never
// allowed to stall the pipeline.
type EventStore interface {
	AddPoint(point *models.DataPoint) error
	AddInterrupt(ev *models.InterruptEvent) error
}

// OpsNotifier pushes interrupt notifications to an operations channel.
type OpsNotifier interface {
	NotifyInterrupt(ev *models.InterruptEvent) error
}

// Deps holds the router's collaborators. Store and Notifier are optional.
type Deps struct {
	Normalizer *normalize.Normalizer
	Engine     *risk.Engine
	Controller *interrupt.Controller
	Gateway    Materializer
	Hub        Broadcaster
	Store      EventStore
	Notifier   OpsNotifier
	Metrics    *metrics.Metrics

	// QueueSize bounds the ingest queue; points arriving while it is full
	// are dropped. HistorySize bounds the retained score history.
	QueueSize   int
	HistorySize int
}

// Statistics is a point-in-time summary of pipeline activity.
type Statistics struct {
	CurrentRiskScore float64            `json:"current_risk_score"`
	Contributors     map[string]float64 `json:"contributors"`
	TotalUpdates     int64              `json:"total_updates"`
	DroppedPoints    int64              `json:"dropped_points"`
	InterruptCount   int64              `json:"interrupt_count"`
	LastInterruptAt  *time.Time         `json:"last_interrupt_at,omitempty"`
	UptimeSeconds    float64            `json:"uptime_seconds"`
}

// Router is the single consumer of the point queue. All scoring state is
// owned by its loop; readers go through the mutex-guarded snapshot.
type Router struct {
	normalizer *normalize.Normalizer
	engine     *risk.Engine
	controller *interrupt.Controller
	gateway    Materializer
	hub        Broadcaster
	store      EventStore
	notifier   OpsNotifier
	metrics    *metrics.Metrics

	points  chan models.DataPoint
	dropped atomic.Int64

	mu           sync.RWMutex
	latest       map[models.Source]models.RiskSample
	current      models.CompositeRiskScore
	history      []models.CompositeRiskScore
	historyCap   int
	totalUpdates int64
	interrupts   int64
	lastFiredAt  time.Time
	startedAt    time.Time

	runCtx context.Context
	wg     sync.WaitGroup
}

// New creates a router from its dependencies.
func New(deps Deps) *Router {
	if deps.QueueSize <= 0 {
		deps.QueueSize = 256
	}
	if deps.HistorySize <= 0 {
		deps.HistorySize = 300
	}
	return &Router{
		normalizer: deps.Normalizer,
		engine:     deps.Engine,
		controller: deps.Controller,
		gateway:    deps.Gateway,
		hub:        deps.Hub,
		store:      deps.Store,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		points:     make(chan models.DataPoint, deps.QueueSize),
		latest:     make(map[models.Source]models.RiskSample),
		historyCap: deps.HistorySize,
		startedAt:  time.Now(),
		runCtx:     context.Background(),
	}
}

// Emit enqueues one point for processing. It never blocks: when the queue
// is full the point is dropped and counted.
func (r *Router) Emit(point models.DataPoint) {
	select {
	case r.points <- point:
	default:
		r.dropped.Add(1)
		logger.Warn("Point queue full, dropping update from %s", point.Source)
	}
}

// Run drains the queue until ctx is cancelled, then waits for in-flight
// interrupt work to finish.
func (r *Router) Run(ctx context.Context) {
	r.mu.Lock()
	r.runCtx = ctx
	r.mu.Unlock()
	logger.Info("Event router started")
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			logger.Info("Event router stopped")
			return
		case point := <-r.points:
			r.handle(point)
		}
	}
}

func (r *Router) handle(point models.DataPoint) {
	if err := point.Validate(); err != nil {
		logger.Warn("Discarding invalid point: %v", err)
		return
	}
	r.metrics.PointsIngested.WithLabelValues(string(point.Source)).Inc()

	sample := r.normalizer.Normalize(point)

	r.mu.Lock()
	r.latest[sample.Source] = sample
	score := r.engine.Recompute(r.latest, time.Now())
	r.current = score
	r.history = append(r.history, score)
	if len(r.history) > r.historyCap {
		r.history = r.history[len(r.history)-r.historyCap:]
	}
	r.totalUpdates++
	r.mu.Unlock()

	r.metrics.CompositeScore.Set(score.Value)

	if r.store != nil {
		if err := r.store.AddPoint(&point); err != nil {
			logger.Warn("Failed to persist point: %v", err)
		}
	}

	r.hub.Broadcast(models.DataUpdateMessage{
		Source: string(point.Source),
		Data: map[string]any{
			"metric":    point.Metric,
			"value":     point.Value,
			"synthetic": point.Synthetic,
			"timestamp": point.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	})
	r.hub.Broadcast(models.RiskScoreMessage{Score: score.Value})

	if r.controller.Observe(score) {
		r.fire(score, false)
	}
}

// ForceInterrupt fires an interrupt regardless of the current score. The
// cooldown still applies; it reports whether the controller let it through.
func (r *Router) ForceInterrupt() bool {
	if !r.controller.Force() {
		logger.Debug("Forced interrupt suppressed by cooldown")
		return false
	}
	r.mu.RLock()
	score := r.current.Clone()
	r.mu.RUnlock()
	r.fire(score, true)
	return true
}

// fire materializes interrupt content off the router loop so slow
// generation never stalls scoring.
func (r *Router) fire(score models.CompositeRiskScore, forced bool) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.mu.RLock()
		ctx := r.runCtx
		r.mu.RUnlock()
		roast, audioRef := r.gateway.Materialize(ctx, score)
		ev := &models.InterruptEvent{
			ID:        uuid.NewString(),
			Score:     score.Value,
			RoastText: roast,
			AudioRef:  audioRef,
			Forced:    forced,
			FiredAt:   time.Now(),
		}

		r.mu.Lock()
		r.interrupts++
		r.lastFiredAt = ev.FiredAt
		r.mu.Unlock()
		r.metrics.InterruptsFired.Inc()

		alertType := "HIGH_RISK"
		if forced {
			alertType = "FORCED_INTERRUPT"
		}
		logger.Info("Interrupt %s fired (score=%.1f, forced=%v)", ev.ID, ev.Score, forced)

		r.hub.Broadcast(models.InterruptMessage{
			Roast:     roast,
			AudioURL:  audioRef,
			RiskScore: score.Value,
		})
		r.hub.Broadcast(models.AlertMessage{
			AlertType: alertType,
			Message:   fmt.Sprintf("Risk score reached %.1f", score.Value),
		})

		if r.store != nil {
			if err := r.store.AddInterrupt(ev); err != nil {
				logger.Warn("Failed to persist interrupt: %v", err)
			}
		}
		if r.notifier != nil {
			if err := r.notifier.NotifyInterrupt(ev); err != nil {
				logger.Warn("Failed to notify interrupt: %v", err)
			}
		}
	}()
}

// CurrentScore returns the latest composite score.
func (r *Router) CurrentScore() models.CompositeRiskScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

// History returns a copy of the retained score history, oldest first.
func (r *Router) History() []models.CompositeRiskScore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CompositeRiskScore, len(r.history))
	for i, s := range r.history {
		out[i] = s.Clone()
	}
	return out
}

// Statistics summarizes pipeline activity for status endpoints.
func (r *Router) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contributors := make(map[string]float64, len(r.current.Contributors))
	for source, value := range r.current.Contributors {
		contributors[string(source)] = value
	}
	stats := Statistics{
		CurrentRiskScore: r.current.Value,
		Contributors:     contributors,
		TotalUpdates:     r.totalUpdates,
		DroppedPoints:    r.dropped.Load(),
		InterruptCount:   r.interrupts,
		UptimeSeconds:    time.Since(r.startedAt).Seconds(),
	}
	if !r.lastFiredAt.IsZero() {
		at := r.lastFiredAt
		stats.LastInterruptAt = &at
	}
	return stats
}

// Wait blocks until in-flight interrupt work is finished. Intended for
// tests; Run already waits before returning.
func (r *Router) Wait() {
	r.wg.Wait()
}
