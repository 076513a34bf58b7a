package transport

import (
	"context"
	"errors"
	"time"
)

// The gateway core never talks to a WhatsApp client library directly; it
// consumes this interface plus the typed event stream returned by Events.
// The event channel carries events for all sessions, possibly interleaved.

var (
	ErrSessionUnknown      = errors.New("transport: session not registered")
	ErrSessionNotConnected = errors.New("transport: session not connected")
)

type EventType string

const (
	EventInboundMessage EventType = "message"
	EventAck            EventType = "ack"
	EventConnection     EventType = "connection"
)

// Ack levels reported by the transport for previously sent messages.
const (
	AckDelivered = "delivered"
	AckRead      = "read"
)

// Connection states reported by the transport.
const (
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

type Receipt struct {
	MessageID string
	Timestamp time.Time
}

type InboundMessage struct {
	From      string
	Body      string
	MessageID string
	Timestamp time.Time
}

type Ack struct {
	MessageID string
	Level     string
}

type Event struct {
	Type      EventType
	SessionID string
	Message   *InboundMessage
	Ack       *Ack
	State     string
}

type Transport interface {
	// Connect registers a session and begins pairing. Idempotent.
	Connect(ctx context.Context, sessionID string) error
	Disconnect(sessionID string) error

	// Send transmits one message and returns the provider receipt.
	Send(ctx context.Context, sessionID, recipient, body string) (*Receipt, error)

	// PairingCode returns the payload to encode as a pairing QR code.
	PairingCode(sessionID string) (string, error)

	Events() <-chan Event
}
