package models

import "encoding/json"

// Message is one outbound client message. Each kind is its own struct so
// payload shapes are checked at compile time; the wire envelope with its
// "type" tag only exists at the broadcaster boundary.
type Message interface {
	Kind() string
}

// RiskScoreMessage carries the current composite score.
type RiskScoreMessage struct {
	Score float64 `json:"score"`
}

func (RiskScoreMessage) Kind() string { return "RISK_SCORE" }

// InterruptMessage carries a fired interrupt with its generated content.
type InterruptMessage struct {
	Roast     string  `json:"roast"`
	AudioURL  string  `json:"audio_url"`
	RiskScore float64 `json:"risk_score"`
}

func (InterruptMessage) Kind() string { return "INTERRUPT" }

// AlertMessage carries an operational alert.
type AlertMessage struct {
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
}

func (AlertMessage) Kind() string { return "ALERT" }

// DataUpdateMessage republishes one raw feed update.
type DataUpdateMessage struct {
	Source string         `json:"source"`
	Data   map[string]any `json:"data"`
}

func (DataUpdateMessage) Kind() string { return "DATA_UPDATE" }

// ConnectedMessage greets a client right after it connects.
type ConnectedMessage struct {
	Message    string `json:"message"`
	Statistics any    `json:"statistics"`
}

func (ConnectedMessage) Kind() string { return "CONNECTED" }

// StatusMessage answers a GET_STATUS request.
type StatusMessage struct {
	Running     bool `json:"is_running"`
	Statistics  any  `json:"statistics"`
	Connections int  `json:"connections"`
}

func (StatusMessage) Kind() string { return "STATUS" }

// StatisticsMessage answers a GET_STATISTICS request.
type StatisticsMessage struct {
	Statistics any `json:"statistics"`
}

func (StatisticsMessage) Kind() string { return "STATISTICS" }

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EncodeMessage serializes a message into the wire envelope.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(envelope{Type: m.Kind(), Payload: m})
}

// ClientMessage is one inbound message from a connected client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound client message types.
const (
	ClientGetStatus      = "GET_STATUS"
	ClientGetStatistics  = "GET_STATISTICS"
	ClientForceInterrupt = "FORCE_INTERRUPT"
)
