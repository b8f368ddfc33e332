package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Tankman61/VibeTrade/internal/models"
)

const roastSystemPrompt = "You are a sarcastic, witty AI risk analyst with a dark sense of humor. " +
	"Your job is to deliver short, punchy roasts (1-2 sentences) when market risk gets too high. " +
	"Be clever, reference the actual market data, and make it sting a little. " +
	"Keep it professional but entertaining. No profanity."

// roastClient requests short-form text from an OpenAI-compatible chat
// completions endpoint.
type roastClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func newRoastClient(baseURL, apiKey, model string, timeout time.Duration) *roastClient {
	return &roastClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature"`
	PresencePenalty  float64       `json:"presence_penalty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate returns one roast line for the given composite score.
func (c *roastClient) Generate(ctx context.Context, score models.CompositeRiskScore) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: roastSystemPrompt},
			{Role: "user", Content: buildRoastPrompt(score)},
		},
		MaxTokens:        100,
		Temperature:      0.9,
		PresencePenalty:  0.6,
		FrequencyPenalty: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	roast := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if roast == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return roast, nil
}

// buildRoastPrompt folds the current per-source context into the prompt.
func buildRoastPrompt(score models.CompositeRiskScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The market risk just hit %.1f/100. Time to roast the situation.", score.Value)

	if s, ok := score.Contributors[models.SourceExchange]; ok {
		fmt.Fprintf(&b, " Exchange volatility is scoring %.0f/100.", s)
	}
	if s, ok := score.Contributors[models.SourcePredictionMarket]; ok {
		fmt.Fprintf(&b, " Prediction markets are scoring %.0f/100.", s)
	}
	if s, ok := score.Contributors[models.SourceSentiment]; ok {
		label := "neutral"
		switch {
		case s >= 80:
			label = "extremely negative"
		case s >= 60:
			label = "negative"
		case s <= 20:
			label = "euphoric"
		}
		fmt.Fprintf(&b, " Social sentiment risk is %s (%.0f/100).", label, s)
	}

	b.WriteString(" Deliver a witty, cutting roast about this situation:")
	return b.String()
}
