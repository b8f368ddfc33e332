// Package normalize converts heterogeneous raw metrics into a common
// 0-100 scale using adaptive min-max scaling over a bounded window.
package normalize

import (
	"github.com/Tankman61/VibeTrade/internal/models"
)

const epsilon = 1e-9

// NeutralScore is returned when the window is too short or degenerate.
const NeutralScore = 50.0

type key struct {
	source models.Source
	metric string
}

// state is the bounded rolling history for one (source, metric) pair.
// The buffer is a ring: it fills to capacity, then overwrites oldest-first.
type state struct {
	window []float64
	index  int
}

func (s *state) push(value float64, capacity int) {
	if len(s.window) < capacity {
		s.window = append(s.window, value)
	} else {
		s.window[s.index] = value
	}
	s.index = (s.index + 1) % capacity
}

func (s *state) bounds() (min, max float64) {
	min, max = s.window[0], s.window[0]
	for _, v := range s.window[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Normalizer owns all normalization state. It is not safe for concurrent
// use: the event router is its single caller.
type Normalizer struct {
	capacity int
	states   map[key]*state
}

// New creates a normalizer whose per-metric windows hold capacity samples.
func New(capacity int) *Normalizer {
	if capacity < 2 {
		capacity = 2
	}
	return &Normalizer{
		capacity: capacity,
		states:   make(map[key]*state),
	}
}

// Normalize maps a raw data point onto [0,100] relative to the recent
// history of its (source, metric) pair. Short or constant histories yield
// the neutral score by policy, not as an error.
func (n *Normalizer) Normalize(point models.DataPoint) models.RiskSample {
	k := key{source: point.Source, metric: point.Metric}
	st, ok := n.states[k]
	if !ok {
		st = &state{window: make([]float64, 0, n.capacity)}
		n.states[k] = st
	}

	st.push(point.Value, n.capacity)

	score := NeutralScore
	if len(st.window) >= 2 {
		min, max := st.bounds()
		if max-min > epsilon {
			score = clamp(100 * (point.Value - min) / (max - min))
		}
	}

	return models.RiskSample{
		Source:    point.Source,
		Score:     score,
		Timestamp: point.Timestamp,
	}
}

// WindowLen reports the current sample count for one (source, metric) pair.
func (n *Normalizer) WindowLen(source models.Source, metric string) int {
	if st, ok := n.states[key{source: source, metric: metric}]; ok {
		return len(st.window)
	}
	return 0
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
