package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeFunc parses one upstream payload. ok=false with a nil error means
// the message is valid but carries no data point (acks, heartbeats);
// a non-nil error means the payload is malformed and gets counted.
type DecodeFunc func(payload []byte) (metric string, value float64, ok bool, err error)

// DecodeExchangeTrade parses a Binance-style trade stream message:
// {"e":"trade","s":"BTCUSDT","p":"43250.50",...}
func DecodeExchangeTrade(payload []byte) (string, float64, bool, error) {
	var msg struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
		Error  any    `json:"error"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", 0, false, fmt.Errorf("invalid trade payload: %w", err)
	}
	if msg.Error != nil {
		return "", 0, false, fmt.Errorf("upstream error payload: %v", msg.Error)
	}
	if msg.Price == "" {
		// Subscription acks and other non-trade frames.
		return "", 0, false, nil
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid trade price %q: %w", msg.Price, err)
	}
	metric := msg.Symbol
	if metric == "" {
		metric = "BTCUSDT"
	}
	return metric, price, true, nil
}

// DecodeMarketProbability parses a prediction-market update:
// {"market_id":"...","probability":0.75} with heartbeat frames skipped.
func DecodeMarketProbability(payload []byte) (string, float64, bool, error) {
	var msg struct {
		Type        string   `json:"type"`
		MarketID    string   `json:"market_id"`
		Probability *float64 `json:"probability"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", 0, false, fmt.Errorf("invalid market payload: %w", err)
	}
	if msg.Type == "heartbeat" {
		return "", 0, false, nil
	}
	if msg.Probability == nil {
		return "", 0, false, nil
	}
	p := *msg.Probability
	if p < 0.0 || p > 1.0 {
		return "", 0, false, fmt.Errorf("probability %f out of range", p)
	}
	metric := msg.MarketID
	if metric == "" {
		metric = "unknown"
	}
	return metric, p, true, nil
}

// DecodeSentiment parses a sentiment update. Two formats exist upstream:
// {"sentiment":0.75,"source":"reddit"} with sentiment in [-1,1], and
// {"score":62,"source":"reddit"} with score in [0,100] converted to [-1,1].
func DecodeSentiment(payload []byte) (string, float64, bool, error) {
	var msg struct {
		Sentiment *float64 `json:"sentiment"`
		Score     *float64 `json:"score"`
		Source    string   `json:"source"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", 0, false, fmt.Errorf("invalid sentiment payload: %w", err)
	}

	metric := msg.Source
	if metric == "" {
		metric = "reddit"
	}

	var sentiment float64
	switch {
	case msg.Sentiment != nil:
		sentiment = *msg.Sentiment
	case msg.Score != nil:
		score := *msg.Score
		if score < 0 || score > 100 {
			return "", 0, false, fmt.Errorf("sentiment score %f out of range", score)
		}
		sentiment = (score - 50) / 50
	default:
		return "", 0, false, nil
	}

	if sentiment < -1.0 || sentiment > 1.0 {
		return "", 0, false, fmt.Errorf("sentiment %f out of range", sentiment)
	}
	return metric, sentiment, true, nil
}
