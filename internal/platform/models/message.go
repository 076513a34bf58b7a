package models

const (
	MessageOutbound = "outbound"
	MessageInbound  = "inbound"
)

// Outbound message statuses follow the transport lifecycle.
const (
	MessageQueued    = "queued"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
	MessageReceived  = "received"
)

type Message struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	Direction    string `json:"direction"`
	Recipient    string `json:"recipient,omitempty"`
	Sender       string `json:"sender,omitempty"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	ProviderID   string `json:"provider_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

type DailyStat struct {
	Day       string `json:"day"` // YYYY-MM-DD
	SessionID string `json:"session_id"`
	Sent      int    `json:"sent"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Received  int    `json:"received"`
}
