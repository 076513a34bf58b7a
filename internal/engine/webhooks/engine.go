package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wagate/internal/platform/models"
)

// Engine fans out domain events to registered subscriptions. Trigger is
// fire-and-forget: it snapshots the payload, hands one job per matching
// subscription to the worker pool and returns. Each job retries
// independently on its own backoff timer until it reaches a terminal
// state, at which point exactly one delivery log row is recorded.

const (
	HeaderSignature = "X-Wagate-Signature"
	HeaderEvent     = "X-Wagate-Event"
	HeaderTimestamp = "X-Wagate-Timestamp"
	HeaderDelivery  = "X-Wagate-Delivery"
)

var errMissingSecret = errors.New("webhooks: subscription has no secret")

type SubscriptionSource interface {
	ActiveForEvent(orgID, eventType string) ([]*models.Subscription, error)
}

type DeliveryRecorder interface {
	Record(orgID string, entry *models.DeliveryLog) error
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Timeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

type TestResult struct {
	Success        bool  `json:"success"`
	StatusCode     int   `json:"status_code"`
	ResponseTimeMs int64 `json:"response_time_ms"`
}

// delivery is one in-flight fan-out to one subscription. attempt is
// 0-based; a job terminates after MaxAttempts tries.
type delivery struct {
	orgID      string
	sub        *models.Subscription
	event      string
	id         string
	payload    []byte
	attempt    int
	lastStatus int
	lastErr    string
}

type Engine struct {
	subs   SubscriptionSource
	logs   DeliveryRecorder
	client *http.Client
	clock  clockwork.Clock
	cfg    Config
	logger zerolog.Logger

	jobs chan *delivery
	quit chan struct{}
	wg   sync.WaitGroup
}

func NewEngine(subs SubscriptionSource, logs DeliveryRecorder, cfg Config, clock clockwork.Clock) *Engine {
	cfg.applyDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		subs:   subs,
		logs:   logs,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clock,
		cfg:    cfg,
		logger: log.With().Str("component", "webhooks").Logger(),
		jobs:   make(chan *delivery, cfg.QueueSize),
		quit:   make(chan struct{}),
	}
}

func (e *Engine) Start() {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// Stop halts the worker pool. Parked retries are abandoned; a restart
// relies on the failure sweep rather than resuming them.
func (e *Engine) Stop() {
	close(e.quit)
	e.wg.Wait()
}

// QueueDepth reports the number of deliveries waiting for a worker.
func (e *Engine) QueueDepth() int {
	return len(e.jobs)
}

// Trigger looks up the active subscriptions listening to eventType and
// enqueues one delivery per match. It never blocks on subscriber I/O and
// returns immediately when nothing matches.
func (e *Engine) Trigger(orgID, eventType string, data interface{}) {
	subs, err := e.subs.ActiveForEvent(orgID, eventType)
	if err != nil {
		e.logger.Error().Err(err).Str("org_id", orgID).Str("event", eventType).Msg("subscription lookup failed")
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(Envelope{Event: eventType, Timestamp: e.clock.Now().UTC(), Data: data})
	if err != nil {
		e.logger.Error().Err(err).Str("event", eventType).Msg("payload marshal failed")
		return
	}

	for _, sub := range subs {
		e.enqueue(&delivery{
			orgID:   orgID,
			sub:     sub,
			event:   eventType,
			id:      "evt_" + uuid.NewString(),
			payload: payload,
		})
	}
}

// TestWebhook performs a synchronous single-attempt delivery of a
// synthetic test event, bypassing the retry pipeline.
func (e *Engine) TestWebhook(sub *models.Subscription) TestResult {
	payload, err := json.Marshal(Envelope{
		Event:     EventTest,
		Timestamp: e.clock.Now().UTC(),
		Data:      map[string]string{"message": "wagate connectivity test"},
	})
	if err != nil {
		return TestResult{}
	}

	d := &delivery{
		orgID:   sub.OrganizationID,
		sub:     sub,
		event:   EventTest,
		id:      "evt_" + uuid.NewString(),
		payload: payload,
	}

	start := time.Now()
	status, err := e.attempt(d)
	elapsed := time.Since(start).Milliseconds()

	return TestResult{
		Success:        err == nil && succeeded(status),
		StatusCode:     status,
		ResponseTimeMs: elapsed,
	}
}

func (e *Engine) enqueue(d *delivery) {
	select {
	case e.jobs <- d:
	default:
		e.logger.Warn().Str("subscription_id", d.sub.ID).Str("event", d.event).Msg("delivery queue full, dropping")
		e.record(d, models.DeliveryFailed, d.lastStatus, "delivery queue full")
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case d := <-e.jobs:
			e.process(d)
		}
	}
}

func (e *Engine) process(d *delivery) {
	status, err := e.attempt(d)

	if err == nil && succeeded(status) {
		e.record(d, models.DeliveryDelivered, status, "")
		return
	}
	if errors.Is(err, errMissingSecret) {
		// Configuration error; retrying cannot fix it.
		e.record(d, models.DeliveryFailed, 0, err.Error())
		return
	}

	if err != nil {
		d.lastStatus = 0
		d.lastErr = err.Error()
	} else {
		d.lastStatus = status
		d.lastErr = fmt.Sprintf("HTTP %d", status)
	}

	if d.attempt+1 >= e.cfg.MaxAttempts {
		e.record(d, models.DeliveryFailed, d.lastStatus, d.lastErr)
		return
	}

	// 2s, 4s, 8s... between successive attempts.
	backoff := time.Duration(1<<uint(d.attempt+1)) * time.Second
	d.attempt++

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-e.clock.After(backoff):
			e.enqueue(d)
		case <-e.quit:
		}
	}()
}

func (e *Engine) attempt(d *delivery) (int, error) {
	if d.sub.Secret == "" {
		return 0, errMissingSecret
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.sub.URL, bytes.NewReader(d.payload))
	if err != nil {
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(d.sub.Secret, d.payload))
	req.Header.Set(HeaderEvent, d.event)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(e.clock.Now().UnixMilli(), 10))
	req.Header.Set(HeaderDelivery, d.id)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}

func (e *Engine) record(d *delivery, status string, httpStatus int, errMsg string) {
	entry := &models.DeliveryLog{
		ID:             "del_" + uuid.NewString(),
		SubscriptionID: d.sub.ID,
		Event:          d.event,
		Payload:        string(d.payload),
		Status:         status,
		HTTPStatus:     httpStatus,
		AttemptCount:   d.attempt + 1,
		ErrorMessage:   errMsg,
		CreatedAt:      e.clock.Now().Unix(),
	}
	if err := e.logs.Record(d.orgID, entry); err != nil {
		e.logger.Error().Err(err).Str("subscription_id", d.sub.ID).Str("delivery_id", d.id).Msg("failed to persist delivery log")
	}
}

func succeeded(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}
