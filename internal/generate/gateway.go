// Package generate turns firing interrupts into user-facing roast text and
// synthesized speech, with caching and fallbacks so generation failures
// never block or suppress an alert.
package generate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Tankman61/VibeTrade/internal/logger"
	"github.com/Tankman61/VibeTrade/internal/models"
)

// FallbackAudioRef is served when speech synthesis is unavailable.
const FallbackAudioRef = "/audio/fallback_roast.mp3"

// Config holds the collaborator endpoints and policies.
type Config struct {
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	VoiceID           string
	Timeout           time.Duration
	AudioDir          string
	SynthesisPerMin   int
}

// FallbackCallback is invoked when canned content replaces a failed or
// unavailable generation call; kind is "text" or "speech".
type FallbackCallback func(kind string)

// Gateway materializes interrupt content. A nil roast or speech client
// (missing credentials) means permanent fallback for that collaborator;
// the pipeline still runs in degraded mode.
type Gateway struct {
	roast         *roastClient
	speech        *speechClient
	audioDir      string
	limiter       *rate.Limiter
	textBreaker   *gobreaker.CircuitBreaker
	speechBreaker *gobreaker.CircuitBreaker
	onFallback    FallbackCallback
}

// New creates a gateway. Missing API keys are logged as warnings, not
// errors: degraded mode is a supported configuration.
func New(cfg Config) (*Gateway, error) {
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	g := &Gateway{
		audioDir:      cfg.AudioDir,
		limiter:       rate.NewLimiter(rate.Limit(float64(cfg.SynthesisPerMin)/60.0), cfg.SynthesisPerMin),
		textBreaker:   newBreaker("roast-text"),
		speechBreaker: newBreaker("speech-synthesis"),
	}

	if cfg.OpenAIAPIKey != "" {
		g.roast = newRoastClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Timeout)
	} else {
		logger.Warn("OpenAI API key not set, using canned roast lines")
	}
	if cfg.ElevenLabsAPIKey != "" {
		g.speech = newSpeechClient(cfg.ElevenLabsBaseURL, cfg.ElevenLabsAPIKey, cfg.VoiceID, cfg.Timeout)
	} else {
		logger.Warn("ElevenLabs API key not set, using fallback audio")
	}

	return g, nil
}

// SetFallbackCallback registers the fallback counter hook.
func (g *Gateway) SetFallbackCallback(cb FallbackCallback) {
	g.onFallback = cb
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Materialize produces roast text and an audio reference for a firing
// interrupt. It never returns an error: every failure substitutes fallback
// content, and the call is bounded by the configured collaborator timeout.
func (g *Gateway) Materialize(ctx context.Context, score models.CompositeRiskScore) (roastText, audioRef string) {
	roastText = g.materializeText(ctx, score)
	audioRef = g.materializeAudio(ctx, roastText)
	return roastText, audioRef
}

func (g *Gateway) materializeText(ctx context.Context, score models.CompositeRiskScore) string {
	if g.roast == nil {
		g.fellBack("text")
		return fallbackRoast(score.Value)
	}

	result, err := g.textBreaker.Execute(func() (any, error) {
		return g.roast.Generate(ctx, score)
	})
	if err != nil {
		logger.Error("Roast generation failed, using canned line: %v", err)
		g.fellBack("text")
		return fallbackRoast(score.Value)
	}
	return result.(string)
}

func (g *Gateway) materializeAudio(ctx context.Context, text string) string {
	filename := audioFilename(text)
	path := filepath.Join(g.audioDir, filename)

	// Cache hit: same text was already synthesized.
	if _, err := os.Stat(path); err == nil {
		logger.Debug("Using cached audio for roast (%s)", filename)
		return "/audio/" + filename
	}

	if g.speech == nil {
		g.fellBack("speech")
		return FallbackAudioRef
	}
	if !g.limiter.Allow() {
		logger.Warn("Speech synthesis rate limit reached, using fallback audio")
		g.fellBack("speech")
		return FallbackAudioRef
	}

	result, err := g.speechBreaker.Execute(func() (any, error) {
		return g.speech.Synthesize(ctx, text)
	})
	if err != nil {
		logger.Error("Speech synthesis failed, using fallback audio: %v", err)
		g.fellBack("speech")
		return FallbackAudioRef
	}

	if err := os.WriteFile(path, result.([]byte), 0o644); err != nil {
		logger.Error("Failed to write audio file: %v", err)
		g.fellBack("speech")
		return FallbackAudioRef
	}
	return "/audio/" + filename
}

func (g *Gateway) fellBack(kind string) {
	if g.onFallback != nil {
		g.onFallback(kind)
	}
}

// audioFilename derives the cache filename from a content hash of the
// text, so repeated roasts do not re-invoke synthesis.
func audioFilename(text string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("roast_%s.mp3", hex.EncodeToString(sum[:])[:8])
}

// fallbackRoast picks a canned line by score band.
func fallbackRoast(score float64) string {
	switch {
	case score >= 90:
		return fmt.Sprintf("Risk at %.0f/100. This isn't a dip, it's a cliff. Hands off the buy button.", score)
	case score >= 75:
		return fmt.Sprintf("Risk just hit %.0f/100. Congratulations, you've achieved peak market chaos.", score)
	case score >= 50:
		return fmt.Sprintf("Risk at %.0f/100 and climbing. Maybe close the leverage tab.", score)
	default:
		return fmt.Sprintf("Risk at %.0f/100. Calm out there. Suspiciously calm.", score)
	}
}
