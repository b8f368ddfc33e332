// Package models defines the core domain entities: data points, risk
// samples, composite scores, and interrupt events.
package models

import (
	"errors"
	"time"
)

// Source identifies which upstream feed produced a data point.
type Source string

const (
	SourceExchange         Source = "exchange"
	SourcePredictionMarket Source = "prediction_market"
	SourceSentiment        Source = "sentiment"
)

// AllSources lists every known source in a stable order.
var AllSources = []Source{SourceExchange, SourcePredictionMarket, SourceSentiment}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceExchange, SourcePredictionMarket, SourceSentiment:
		return true
	}
	return false
}

// DataPoint is one normalized-shape observation from a single feed.
// It is immutable after creation; ownership transfers to the router on emit.
type DataPoint struct {
	Source    Source    `json:"source"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Synthetic bool      `json:"synthetic"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks data point field constraints.
func (p *DataPoint) Validate() error {
	if !p.Source.Valid() {
		return errors.New("unknown source")
	}
	if p.Metric == "" {
		return errors.New("metric must not be empty")
	}
	if p.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// RiskSample is a single normalized score for one source, in [0,100].
type RiskSample struct {
	Source    Source    `json:"source"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// CompositeRiskScore is the combined danger score across all sources.
// The risk engine owns the canonical instance; everyone else reads copies.
type CompositeRiskScore struct {
	Value        float64            `json:"value"`
	Timestamp    time.Time          `json:"timestamp"`
	Contributors map[Source]float64 `json:"contributors"`
}

// Clone returns a snapshot copy safe to hand to other components.
func (c CompositeRiskScore) Clone() CompositeRiskScore {
	out := c
	out.Contributors = make(map[Source]float64, len(c.Contributors))
	for k, v := range c.Contributors {
		out.Contributors[k] = v
	}
	return out
}

// InterruptEvent is one fired alert with its generated content.
// Created once per trigger, immutable, broadcast then kept only in the
// bounded recent history.
type InterruptEvent struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	RoastText string    `json:"roast_text"`
	AudioRef  string    `json:"audio_ref"`
	Forced    bool      `json:"forced"`
	FiredAt   time.Time `json:"fired_at"`
}

// ListenerStatus reports one listener's health for the operational surface.
type ListenerStatus struct {
	Source  Source `json:"source"`
	Up      bool   `json:"up"`
	Mode    string `json:"mode"` // "connecting", "live", or "synthetic"
	Dropped int64  `json:"malformed_dropped"`
}
