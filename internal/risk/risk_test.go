package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/Tankman61/VibeTrade/internal/models"
)

func sample(source models.Source, score float64) models.RiskSample {
	return models.RiskSample{Source: source, Score: score, Timestamp: time.Now()}
}

func TestWeightedAverage(t *testing.T) {
	e := New(DefaultConfig())
	latest := map[models.Source]models.RiskSample{
		models.SourceExchange:         sample(models.SourceExchange, 50),
		models.SourcePredictionMarket: sample(models.SourcePredictionMarket, 50),
		models.SourceSentiment:        sample(models.SourceSentiment, 50),
	}

	score := e.Recompute(latest, time.Now())
	if math.Abs(score.Value-50) > 1e-9 {
		t.Errorf("uniform 50 inputs should compose to 50, got %f", score.Value)
	}
	if len(score.Contributors) != 3 {
		t.Errorf("expected 3 contributors, got %d", len(score.Contributors))
	}
}

func TestMissingSourceRenormalizes(t *testing.T) {
	e := New(DefaultConfig())
	// No sentiment sample yet: weights renormalize over the present two,
	// and the missing source is never treated as zero.
	latest := map[models.Source]models.RiskSample{
		models.SourceExchange:         sample(models.SourceExchange, 60),
		models.SourcePredictionMarket: sample(models.SourcePredictionMarket, 60),
	}

	score := e.Recompute(latest, time.Now())
	if math.Abs(score.Value-60) > 1e-9 {
		t.Errorf("two 60 inputs with renormalized weights should compose to 60, got %f", score.Value)
	}
	if _, ok := score.Contributors[models.SourceSentiment]; ok {
		t.Error("missing source must not appear among contributors")
	}
}

func TestNoSourcesYieldsZero(t *testing.T) {
	e := New(DefaultConfig())
	score := e.Recompute(map[models.Source]models.RiskSample{}, time.Now())
	if score.Value != 0 {
		t.Errorf("no sources should compose to 0, got %f", score.Value)
	}
}

func TestSingleExtremeIsNotAmplified(t *testing.T) {
	e := New(DefaultConfig())
	latest := map[models.Source]models.RiskSample{
		models.SourceExchange:         sample(models.SourceExchange, 95),
		models.SourcePredictionMarket: sample(models.SourcePredictionMarket, 50),
		models.SourceSentiment:        sample(models.SourceSentiment, 50),
	}

	score := e.Recompute(latest, time.Now())
	want := 0.4*95 + 0.3*50 + 0.3*50
	if math.Abs(score.Value-want) > 1e-9 {
		t.Errorf("single extreme should not amplify: want %f, got %f", want, score.Value)
	}
}

func TestCorrelatedExtremesAmplify(t *testing.T) {
	e := New(DefaultConfig())
	latest := map[models.Source]models.RiskSample{
		models.SourceExchange:         sample(models.SourceExchange, 90),
		models.SourcePredictionMarket: sample(models.SourcePredictionMarket, 85),
		models.SourceSentiment:        sample(models.SourceSentiment, 50),
	}

	score := e.Recompute(latest, time.Now())
	base := 0.4*90 + 0.3*85 + 0.3*50
	want := base * 1.25
	if math.Abs(score.Value-want) > 1e-9 {
		t.Errorf("two extremes should amplify: want %f, got %f", want, score.Value)
	}
}

func TestLowExtremesCountToo(t *testing.T) {
	e := New(DefaultConfig())
	latest := map[models.Source]models.RiskSample{
		models.SourceExchange:         sample(models.SourceExchange, 10),
		models.SourceSentiment:        sample(models.SourceSentiment, 5),
		models.SourcePredictionMarket: sample(models.SourcePredictionMarket, 50),
	}

	score := e.Recompute(latest, time.Now())
	base := (0.4*10 + 0.3*5 + 0.3*50)
	want := base * 1.25
	if math.Abs(score.Value-want) > 1e-9 {
		t.Errorf("scores below the low band are extreme too: want %f, got %f", want, score.Value)
	}
}

func TestAmplifiedResultIsCapped(t *testing.T) {
	e := New(DefaultConfig())
	latest := map[models.Source]models.RiskSample{
		models.SourceExchange:         sample(models.SourceExchange, 100),
		models.SourcePredictionMarket: sample(models.SourcePredictionMarket, 100),
		models.SourceSentiment:        sample(models.SourceSentiment, 100),
	}

	score := e.Recompute(latest, time.Now())
	if score.Value != 100 {
		t.Errorf("amplified result must be capped at 100, got %f", score.Value)
	}
}

func TestOutputInRangeForAnyInputs(t *testing.T) {
	e := New(DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5000; i++ {
		latest := make(map[models.Source]models.RiskSample)
		for _, source := range models.AllSources {
			if rng.Intn(4) == 0 {
				continue // randomly missing
			}
			latest[source] = sample(source, rng.Float64()*100)
		}
		score := e.Recompute(latest, time.Now())
		if score.Value < 0 || score.Value > 100 {
			t.Fatalf("composite out of range at iteration %d: %f", i, score.Value)
		}
	}
}

func TestDeterminism(t *testing.T) {
	run := func() []float64 {
		e := New(DefaultConfig())
		rng := rand.New(rand.NewSource(99))
		latest := make(map[models.Source]models.RiskSample)
		var out []float64
		ts := time.Unix(0, 0)
		for i := 0; i < 500; i++ {
			source := models.AllSources[rng.Intn(len(models.AllSources))]
			latest[source] = models.RiskSample{Source: source, Score: rng.Float64() * 100, Timestamp: ts}
			out = append(out, e.Recompute(latest, ts).Value)
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("composite sequence diverged at index %d: %f vs %f", i, first[i], second[i])
		}
	}
}
