// Package risk combines per-source normalized scores into one composite
// 0-100 danger score.
package risk

import (
	"time"

	"github.com/Tankman61/VibeTrade/internal/models"
)

// Config holds the combination formula's tunables.
type Config struct {
	// Weights per source; must sum to 1 over all known sources.
	Weights map[models.Source]float64
	// ExtremeHigh/ExtremeLow bound the "extreme" band. A source whose
	// score is above ExtremeHigh or below ExtremeLow counts as extreme.
	ExtremeHigh float64
	ExtremeLow  float64
	// Amplification multiplies the weighted base when two or more
	// sources are simultaneously extreme. Correlated extremity across
	// independent feeds is more alarming than any single extreme.
	Amplification float64
}

// DefaultConfig returns the documented default formula parameters.
func DefaultConfig() Config {
	return Config{
		Weights: map[models.Source]float64{
			models.SourceExchange:         0.4,
			models.SourcePredictionMarket: 0.3,
			models.SourceSentiment:        0.3,
		},
		ExtremeHigh:   80.0,
		ExtremeLow:    20.0,
		Amplification: 1.25,
	}
}

// Engine computes composite scores. It is stateless apart from its config;
// callers pass in the latest sample per source.
type Engine struct {
	config Config
}

// New creates a risk engine with the given formula parameters.
func New(config Config) *Engine {
	return &Engine{config: config}
}

// Recompute combines the latest sample per source into a composite score.
// Sources with no sample yet are excluded and the remaining weights are
// renormalized over the present sources; a missing source is never treated
// as zero. The result is clamped to [0,100] and stamped with now.
func (e *Engine) Recompute(latest map[models.Source]models.RiskSample, now time.Time) models.CompositeRiskScore {
	contributors := make(map[models.Source]float64, len(latest))

	var weightedSum, weightTotal float64
	extremes := 0
	for source, weight := range e.config.Weights {
		sample, ok := latest[source]
		if !ok {
			continue
		}
		contributors[source] = sample.Score
		weightedSum += weight * sample.Score
		weightTotal += weight
		if sample.Score > e.config.ExtremeHigh || sample.Score < e.config.ExtremeLow {
			extremes++
		}
	}

	var value float64
	if weightTotal > 0 {
		value = weightedSum / weightTotal
		if extremes >= 2 {
			value *= e.config.Amplification
		}
		value = clamp(value)
	}

	return models.CompositeRiskScore{
		Value:        value,
		Timestamp:    now,
		Contributors: contributors,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
