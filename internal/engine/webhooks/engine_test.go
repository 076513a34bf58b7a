package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"wagate/internal/platform/models"
)

type fakeSource struct {
	subs  []*models.Subscription
	calls int32
}

func (s *fakeSource) ActiveForEvent(orgID, eventType string) ([]*models.Subscription, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.subs, nil
}

type fakeRecorder struct {
	entries chan *models.DeliveryLog
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: make(chan *models.DeliveryLog, 16)}
}

func (r *fakeRecorder) Record(orgID string, entry *models.DeliveryLog) error {
	r.entries <- entry
	return nil
}

func (r *fakeRecorder) await(t *testing.T) *models.DeliveryLog {
	t.Helper()
	select {
	case entry := <-r.entries:
		return entry
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a delivery log entry")
		return nil
	}
}

func testSubscription(url string) *models.Subscription {
	return &models.Subscription{
		ID:             "wh_test",
		OrganizationID: "org_test",
		URL:            url,
		Events:         []string{EventMessageSent},
		Secret:         "whsec_testsecret",
		Status:         models.SubscriptionActive,
	}
}

func startEngine(t *testing.T, subs []*models.Subscription) (*Engine, *fakeRecorder, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	recorder := newFakeRecorder()
	engine := NewEngine(&fakeSource{subs: subs}, recorder, Config{Workers: 1, QueueSize: 16, MaxAttempts: 3}, fc)
	engine.Start()
	t.Cleanup(engine.Stop)
	return engine, recorder, fc
}

func TestTrigger_NoMatchingSubscriptions(t *testing.T) {
	source := &fakeSource{}
	recorder := newFakeRecorder()
	engine := NewEngine(source, recorder, Config{Workers: 1, QueueSize: 16}, clockwork.NewFakeClock())
	engine.Start()

	engine.Trigger("org_test", EventMessageSent, map[string]string{"id": "msg_1"})
	engine.Stop()

	if got := atomic.LoadInt32(&source.calls); got != 1 {
		t.Errorf("expected exactly one lookup, got %d", got)
	}
	if len(recorder.entries) != 0 {
		t.Error("no delivery should be created when nothing matches")
	}
}

func TestDelivery_SignedAndDelivered(t *testing.T) {
	type seen struct {
		sig, event, timestamp string
		body                  []byte
	}
	requests := make(chan seen, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- seen{
			sig:       r.Header.Get(HeaderSignature),
			event:     r.Header.Get(HeaderEvent),
			timestamp: r.Header.Get(HeaderTimestamp),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, recorder, _ := startEngine(t, []*models.Subscription{testSubscription(server.URL)})

	engine.Trigger("org_test", EventMessageSent, map[string]string{"id": "msg_1"})

	entry := recorder.await(t)
	if entry.Status != models.DeliveryDelivered {
		t.Errorf("expected delivered, got %s", entry.Status)
	}
	if entry.AttemptCount != 1 {
		t.Errorf("expected attempt count 1, got %d", entry.AttemptCount)
	}
	if entry.HTTPStatus != http.StatusOK {
		t.Errorf("expected http status 200, got %d", entry.HTTPStatus)
	}

	req := <-requests
	if req.event != EventMessageSent {
		t.Errorf("expected event header %s, got %s", EventMessageSent, req.event)
	}
	if !Verify("whsec_testsecret", req.body, req.sig) {
		t.Error("signature does not verify against the received body")
	}
	if _, err := strconv.ParseInt(req.timestamp, 10, 64); err != nil {
		t.Errorf("timestamp header is not epoch millis: %q", req.timestamp)
	}

	var envelope Envelope
	if err := json.Unmarshal(req.body, &envelope); err != nil {
		t.Fatalf("body is not a valid envelope: %v", err)
	}
	if envelope.Event != EventMessageSent {
		t.Errorf("envelope event = %s", envelope.Event)
	}
	if envelope.Timestamp.IsZero() {
		t.Error("envelope timestamp is zero")
	}
}

func TestDelivery_RetriesThenSucceeds(t *testing.T) {
	var hits int32
	requests := make(chan int32, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		requests <- n
	}))
	defer server.Close()

	engine, recorder, fc := startEngine(t, []*models.Subscription{testSubscription(server.URL)})

	engine.Trigger("org_test", EventMessageSent, map[string]string{"id": "msg_1"})

	// First attempt fails and parks on the 2s backoff timer.
	<-requests
	fc.BlockUntil(1)

	// Before the backoff elapses nothing fires.
	fc.Advance(1 * time.Second)
	select {
	case <-requests:
		t.Fatal("retry fired before the 2s backoff elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	fc.Advance(1100 * time.Millisecond)
	<-requests
	fc.BlockUntil(1)

	// Second retry waits 4s.
	fc.Advance(4100 * time.Millisecond)
	<-requests

	entry := recorder.await(t)
	if entry.Status != models.DeliveryDelivered {
		t.Errorf("expected delivered, got %s (error %q)", entry.Status, entry.ErrorMessage)
	}
	if entry.AttemptCount != 3 {
		t.Errorf("expected attempt count 3, got %d", entry.AttemptCount)
	}
}

func TestDelivery_ExhaustsRetries(t *testing.T) {
	var hits int32
	requests := make(chan int32, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine, recorder, fc := startEngine(t, []*models.Subscription{testSubscription(server.URL)})

	engine.Trigger("org_test", EventMessageSent, map[string]string{"id": "msg_1"})

	<-requests
	fc.BlockUntil(1)
	fc.Advance(2100 * time.Millisecond)
	<-requests
	fc.BlockUntil(1)
	fc.Advance(4100 * time.Millisecond)
	<-requests

	entry := recorder.await(t)
	if entry.Status != models.DeliveryFailed {
		t.Errorf("expected failed, got %s", entry.Status)
	}
	if entry.AttemptCount != 3 {
		t.Errorf("expected attempt count 3, got %d", entry.AttemptCount)
	}
	if entry.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("expected recorded status 503, got %d", entry.HTTPStatus)
	}

	// No further attempts are scheduled after the terminal state.
	fc.Advance(time.Minute)
	select {
	case <-requests:
		t.Error("attempt fired after exhausting retries")
	case <-time.After(100 * time.Millisecond):
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
}

func TestDelivery_NetworkFailureIsRetried(t *testing.T) {
	// A refused connection counts as an attempt with status 0.
	sub := testSubscription("http://127.0.0.1:1")

	fc := clockwork.NewFakeClock()
	recorder := newFakeRecorder()
	engine := NewEngine(&fakeSource{subs: []*models.Subscription{sub}}, recorder, Config{Workers: 1, QueueSize: 16, MaxAttempts: 2}, fc)
	engine.Start()
	t.Cleanup(engine.Stop)

	engine.Trigger("org_test", EventMessageSent, nil)

	fc.BlockUntil(1)
	fc.Advance(2100 * time.Millisecond)

	entry := recorder.await(t)
	if entry.Status != models.DeliveryFailed {
		t.Errorf("expected failed, got %s", entry.Status)
	}
	if entry.HTTPStatus != 0 {
		t.Errorf("expected sentinel status 0 for network failure, got %d", entry.HTTPStatus)
	}
	if entry.AttemptCount != 2 {
		t.Errorf("expected attempt count 2, got %d", entry.AttemptCount)
	}
	if entry.ErrorMessage == "" {
		t.Error("expected the network error message to be recorded")
	}
}

func TestDelivery_MissingSecretFailsWithoutRetry(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := testSubscription(server.URL)
	sub.Secret = ""

	engine, recorder, _ := startEngine(t, []*models.Subscription{sub})
	engine.Trigger("org_test", EventMessageSent, nil)

	entry := recorder.await(t)
	if entry.Status != models.DeliveryFailed {
		t.Errorf("expected failed, got %s", entry.Status)
	}
	if entry.AttemptCount != 1 {
		t.Errorf("expected a single attempt, got %d", entry.AttemptCount)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("no request should be issued without a signing secret")
	}
}

func TestTestWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderEvent) != EventTest {
			t.Errorf("expected test event header, got %s", r.Header.Get(HeaderEvent))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	engine := NewEngine(&fakeSource{}, newFakeRecorder(), Config{}, clockwork.NewRealClock())

	result := engine.TestWebhook(testSubscription(server.URL))
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if result.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", result.StatusCode)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	result = engine.TestWebhook(testSubscription(failing.URL))
	if result.Success {
		t.Error("expected failure for a 500 response")
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", result.StatusCode)
	}
}
