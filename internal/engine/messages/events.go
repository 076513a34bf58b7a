package messages

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wagate/internal/engine/admission"
	"wagate/internal/engine/webhooks"
	"wagate/internal/platform/models"
	"wagate/internal/platform/transport"
)

// SessionStore is the global-DB session lookup the pump uses to resolve
// which organization an event belongs to.
type SessionStore interface {
	GetByID(id string) (*models.Session, error)
	UpdateStatus(id, status string, ts int64) error
}

// StoreProvider resolves the tenant message store for an organization.
type StoreProvider interface {
	ForOrg(orgID string) (Store, error)
}

// Pump consumes the transport's event stream and turns it into message
// rows, session state updates and webhook triggers. Events for different
// sessions arrive interleaved on one channel.
type Pump struct {
	transport transport.Transport
	sessions  SessionStore
	stores    StoreProvider
	hooks     Trigger
	gate      *admission.Gate
	clock     clockwork.Clock
	logger    zerolog.Logger
}

func NewPump(tp transport.Transport, sessions SessionStore, stores StoreProvider, hooks Trigger, gate *admission.Gate, clock clockwork.Clock) *Pump {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pump{
		transport: tp,
		sessions:  sessions,
		stores:    stores,
		hooks:     hooks,
		gate:      gate,
		clock:     clock,
		logger:    log.With().Str("component", "event_pump").Logger(),
	}
}

// Run blocks until the context is cancelled or the transport closes its
// event channel.
func (p *Pump) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.transport.Events():
			if !ok {
				return
			}
			p.handle(ev)
		}
	}
}

func (p *Pump) handle(ev transport.Event) {
	sess, err := p.sessions.GetByID(ev.SessionID)
	if err != nil {
		p.logger.Error().Err(err).Str("session_id", ev.SessionID).Msg("session lookup failed")
		return
	}
	if sess == nil {
		p.logger.Warn().Str("session_id", ev.SessionID).Msg("event for unknown session dropped")
		return
	}

	switch ev.Type {
	case transport.EventInboundMessage:
		p.handleInbound(sess, ev.Message)
	case transport.EventAck:
		p.handleAck(sess, ev.Ack)
	case transport.EventConnection:
		p.handleConnection(sess, ev.State)
	default:
		p.logger.Warn().Str("type", string(ev.Type)).Msg("unhandled transport event")
	}
}

func (p *Pump) handleInbound(sess *models.Session, in *transport.InboundMessage) {
	if in == nil {
		return
	}
	store, err := p.stores.ForOrg(sess.OrganizationID)
	if err != nil {
		p.logger.Error().Err(err).Str("org_id", sess.OrganizationID).Msg("tenant store unavailable")
		return
	}

	now := p.clock.Now().Unix()
	msg := &models.Message{
		ID:         "msg_" + uuid.NewString(),
		SessionID:  sess.ID,
		Direction:  models.MessageInbound,
		Sender:     in.From,
		Body:       in.Body,
		Status:     models.MessageReceived,
		ProviderID: in.MessageID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.Create(msg); err != nil {
		p.logger.Error().Err(err).Str("session_id", sess.ID).Msg("failed to persist inbound message")
	}

	p.hooks.Trigger(sess.OrganizationID, webhooks.EventMessageReceived, map[string]interface{}{
		"message_id": msg.ID,
		"session_id": sess.ID,
		"from":       in.From,
		"body":       in.Body,
	})
}

func (p *Pump) handleAck(sess *models.Session, ack *transport.Ack) {
	if ack == nil {
		return
	}
	store, err := p.stores.ForOrg(sess.OrganizationID)
	if err != nil {
		p.logger.Error().Err(err).Str("org_id", sess.OrganizationID).Msg("tenant store unavailable")
		return
	}

	status := models.MessageDelivered
	event := webhooks.EventMessageDelivered
	if ack.Level == transport.AckRead {
		status = models.MessageRead
		event = webhooks.EventMessageRead
	}

	if err := store.MarkAckByProvider(ack.MessageID, status, p.clock.Now().Unix()); err != nil {
		p.logger.Error().Err(err).Str("provider_id", ack.MessageID).Msg("failed to record ack")
		return
	}

	p.hooks.Trigger(sess.OrganizationID, event, map[string]interface{}{
		"session_id":  sess.ID,
		"provider_id": ack.MessageID,
	})
}

func (p *Pump) handleConnection(sess *models.Session, state string) {
	now := p.clock.Now().Unix()

	switch state {
	case transport.StateConnected:
		if err := p.sessions.UpdateStatus(sess.ID, models.SessionConnected, now); err != nil {
			p.logger.Error().Err(err).Str("session_id", sess.ID).Msg("failed to update session status")
		}
		// A clean reconnect clears any suspicion throttling.
		p.gate.ResetSuspicion(sess.ID)
		p.hooks.Trigger(sess.OrganizationID, webhooks.EventClientConnected, map[string]interface{}{
			"session_id": sess.ID,
		})
	case transport.StateDisconnected:
		if err := p.sessions.UpdateStatus(sess.ID, models.SessionDisconnected, now); err != nil {
			p.logger.Error().Err(err).Str("session_id", sess.ID).Msg("failed to update session status")
		}
		p.hooks.Trigger(sess.OrganizationID, webhooks.EventClientDisconnected, map[string]interface{}{
			"session_id": sess.ID,
		})
	}
}
