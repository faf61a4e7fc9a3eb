package notify

import "time"

// Kind is the "type" field of every frame sent to subscribers.
type Kind string

const (
	ListingCreated    Kind = "listing_created"
	PurchaseRequested Kind = "purchase_requested"
	PurchaseConfirmed Kind = "purchase_confirmed"
	FundsReleased     Kind = "funds_released"
	ReputationUpdated Kind = "reputation_updated"

	Connected Kind = "connected"
	Ping      Kind = "ping"
	Pong      Kind = "pong"
)

// Message is the JSON frame written to subscribers. Timestamp is unix millis.
type Message struct {
	Type      Kind   `json:"type"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewMessage(kind Kind, data any) Message {
	return Message{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}
}

// ClientMessage is what subscribers may send. Only ping is understood.
type ClientMessage struct {
	Type Kind `json:"type"`
}
