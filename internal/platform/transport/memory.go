package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Transport used in development and tests. Sends
// succeed for connected sessions and events can be injected with the
// Emit helpers.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]string // sessionID -> state
	events   chan Event
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]string),
		events:   make(chan Event, 64),
	}
}

func (m *Memory) Connect(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.sessions[sessionID] = StateDisconnected
	}
	return nil
}

func (m *Memory) Disconnect(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionUnknown
	}
	m.sessions[sessionID] = StateDisconnected
	return nil
}

func (m *Memory) Send(ctx context.Context, sessionID, recipient, body string) (*Receipt, error) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionUnknown
	}
	if state != StateConnected {
		return nil, ErrSessionNotConnected
	}
	return &Receipt{
		MessageID: uuid.NewString(),
		Timestamp: time.Now(),
	}, nil
}

func (m *Memory) PairingCode(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return "", ErrSessionUnknown
	}
	return fmt.Sprintf("wagate://pair/%s/%s", sessionID, uuid.NewString()), nil
}

func (m *Memory) Events() <-chan Event {
	return m.events
}

// EmitConnection marks the session and publishes a connection event.
func (m *Memory) EmitConnection(sessionID, state string) {
	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()
	m.emit(Event{Type: EventConnection, SessionID: sessionID, State: state})
}

// EmitMessage publishes an inbound message event.
func (m *Memory) EmitMessage(sessionID, from, body string) {
	m.emit(Event{
		Type:      EventInboundMessage,
		SessionID: sessionID,
		Message: &InboundMessage{
			From:      from,
			Body:      body,
			MessageID: uuid.NewString(),
			Timestamp: time.Now(),
		},
	})
}

// EmitAck publishes a delivery or read receipt for a sent message.
func (m *Memory) EmitAck(sessionID, messageID, level string) {
	m.emit(Event{
		Type:      EventAck,
		SessionID: sessionID,
		Ack:       &Ack{MessageID: messageID, Level: level},
	})
}

func (m *Memory) emit(ev Event) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.events <- ev
}

func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
}
