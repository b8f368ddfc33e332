package ingest

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/Tankman61/VibeTrade/internal/models"
)

// walk describes one source's random-walk parameters.
type walk struct {
	metric    string
	start     float64
	min, max  float64
	step      float64 // max per-tick drift, relative for prices
	relative  bool    // drift proportional to current value
	spikeProb float64 // chance of an extra jolt per tick
	spikeStep float64
	negBias   float64 // chance of a small downward nudge (sentiment skews critical)
}

func profileFor(source models.Source) walk {
	switch source {
	case models.SourceExchange:
		return walk{
			metric: "BTCUSDT", start: 60000, min: 1000, max: 500000,
			step: 0.002, relative: true, spikeProb: 0.05, spikeStep: 0.01,
		}
	case models.SourcePredictionMarket:
		return walk{
			metric: "synthetic_market", start: 0.5, min: 0.05, max: 0.95,
			step: 0.05, spikeProb: 0.10, spikeStep: 0.15,
		}
	default:
		return walk{
			metric: "synthetic_sentiment", start: 0.1, min: -1.0, max: 1.0,
			step: 0.1, spikeProb: 0.15, spikeStep: 0.3, negBias: 0.3,
		}
	}
}

// SyntheticListener produces plausible mock values at a fixed interval.
// It backs a live listener after upstream failure and can also run
// standalone when no upstream URL is configured.
type SyntheticListener struct {
	source   models.Source
	interval time.Duration
	profile  walk
	rng      *rand.Rand
	running  atomic.Bool
}

// NewSynthetic creates a synthetic generator for one source.
func NewSynthetic(source models.Source, interval time.Duration) *SyntheticListener {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &SyntheticListener{
		source:   source,
		interval: interval,
		profile:  profileFor(source),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SyntheticListener) Source() models.Source { return s.source }

func (s *SyntheticListener) Status() models.ListenerStatus {
	return models.ListenerStatus{
		Source: s.source,
		Up:     s.running.Load(),
		Mode:   ModeSynthetic,
	}
}

// Run emits random-walk points until ctx is cancelled.
func (s *SyntheticListener) Run(ctx context.Context, emit Emit) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	p := s.profile
	value := p.start

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value = s.next(value)
			emit(models.DataPoint{
				Source:    s.source,
				Metric:    p.metric,
				Value:     value,
				Synthetic: true,
				Timestamp: time.Now(),
			})
		}
	}
}

func (s *SyntheticListener) next(value float64) float64 {
	p := s.profile

	drift := (s.rng.Float64()*2 - 1) * p.step
	if p.relative {
		value += value * drift
	} else {
		value += drift
	}

	if s.rng.Float64() < p.spikeProb {
		spike := (s.rng.Float64()*2 - 1) * p.spikeStep
		if p.relative {
			value += value * spike
		} else {
			value += spike
		}
	}

	if p.negBias > 0 && s.rng.Float64() < p.negBias {
		value -= p.step / 2
	}

	if value < p.min {
		value = p.min
	}
	if value > p.max {
		value = p.max
	}
	return value
}
