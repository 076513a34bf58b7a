package messages

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wagate/internal/engine/admission"
	"wagate/internal/engine/webhooks"
	"wagate/internal/platform/models"
	"wagate/internal/platform/transport"
)

// Store is the tenant-scoped persistence the pipeline writes through.
// Handlers construct one per request from the tenant DB, the same way the
// other engines receive their repositories.
type Store interface {
	Create(m *models.Message) error
	MarkSent(id, providerID string, ts int64) error
	MarkFailed(id, errMsg string, ts int64) error
	MarkAckByProvider(providerID, status string, ts int64) error
}

// Trigger is the webhook fan-out entry point the pipeline fires events
// into. Satisfied by *webhooks.Engine.
type Trigger interface {
	Trigger(orgID, eventType string, data interface{})
}

// Service admits, delays and dispatches outbound messages. Send returns
// as soon as the message is queued; the advisory delay and the transport
// call happen on a per-message goroutine so one client's pacing never
// stalls another's.
type Service struct {
	gate      *admission.Gate
	transport transport.Transport
	hooks     Trigger
	clock     clockwork.Clock
	logger    zerolog.Logger

	sendTimeout time.Duration
}

func NewService(gate *admission.Gate, tp transport.Transport, hooks Trigger, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		gate:        gate,
		transport:   tp,
		hooks:       hooks,
		clock:       clock,
		logger:      log.With().Str("component", "messages").Logger(),
		sendTimeout: 30 * time.Second,
	}
}

// Send runs the admission gate and, when admitted, persists the message
// as queued and schedules the dispatch. A blocked result is returned
// as-is for the handler to translate; it is not an error.
func (s *Service) Send(store Store, orgID, sessionID, recipient, body string) (admission.Result, *models.Message, error) {
	res, err := s.gate.TryAdmit(sessionID, body)
	if err != nil {
		return res, nil, err
	}
	if !res.Allowed {
		return res, nil, nil
	}

	now := s.clock.Now().Unix()
	msg := &models.Message{
		ID:        "msg_" + uuid.NewString(),
		SessionID: sessionID,
		Direction: models.MessageOutbound,
		Recipient: recipient,
		Body:      body,
		Status:    models.MessageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(msg); err != nil {
		return res, nil, err
	}

	go s.dispatch(store, orgID, msg, res.Delay)

	return res, msg, nil
}

func (s *Service) dispatch(store Store, orgID string, msg *models.Message, delay time.Duration) {
	if delay > 0 {
		<-s.clock.After(delay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	receipt, err := s.transport.Send(ctx, msg.SessionID, msg.Recipient, msg.Body)
	now := s.clock.Now().Unix()

	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Str("session_id", msg.SessionID).Msg("transport send failed")
		if dbErr := store.MarkFailed(msg.ID, err.Error(), now); dbErr != nil {
			s.logger.Error().Err(dbErr).Str("message_id", msg.ID).Msg("failed to mark message failed")
		}
		s.gate.RecordOutcome(msg.SessionID, admission.OutcomeFailure)
		s.hooks.Trigger(orgID, webhooks.EventMessageFailed, map[string]interface{}{
			"message_id": msg.ID,
			"session_id": msg.SessionID,
			"recipient":  msg.Recipient,
			"error":      err.Error(),
		})
		return
	}

	if dbErr := store.MarkSent(msg.ID, receipt.MessageID, now); dbErr != nil {
		s.logger.Error().Err(dbErr).Str("message_id", msg.ID).Msg("failed to mark message sent")
	}
	s.gate.RecordOutcome(msg.SessionID, admission.OutcomeSuccess)
	s.hooks.Trigger(orgID, webhooks.EventMessageSent, map[string]interface{}{
		"message_id":  msg.ID,
		"session_id":  msg.SessionID,
		"recipient":   msg.Recipient,
		"provider_id": receipt.MessageID,
	})
}
