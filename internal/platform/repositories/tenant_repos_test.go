package repositories

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"wagate/internal/platform/models"
)

func setupTenantDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	query := `
	CREATE TABLE webhook_subscriptions (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE webhook_deliveries (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		event TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		http_status INTEGER NOT NULL DEFAULT 0,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		recipient TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func TestSubscriptionRepository_CreateAndGet(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewSubscriptionRepository(db)

	sub := &models.Subscription{
		URL:    "https://example.com/hook",
		Events: []string{"message.sent", "message.failed"},
		Secret: "whsec_abc123",
	}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("Failed to create subscription: %v", err)
	}
	if sub.ID == "" || sub.Status != models.SubscriptionActive {
		t.Fatalf("Create did not initialize subscription: %+v", sub)
	}

	fetched, err := repo.GetByID(sub.ID)
	if err != nil {
		t.Fatalf("Failed to get subscription: %v", err)
	}
	if fetched.URL != "https://example.com/hook" {
		t.Errorf("Expected URL to round-trip, got %s", fetched.URL)
	}
	if len(fetched.Events) != 2 || fetched.Events[0] != "message.sent" {
		t.Errorf("Events did not round-trip: %v", fetched.Events)
	}
	if fetched.Secret != "whsec_abc123" {
		t.Errorf("Secret did not round-trip")
	}
}

func TestSubscriptionRepository_ActiveForEvent(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewSubscriptionRepository(db)

	matching := &models.Subscription{URL: "https://a.example.com", Events: []string{"message.sent"}, Secret: "s1"}
	other := &models.Subscription{URL: "https://b.example.com", Events: []string{"client.connected"}, Secret: "s2"}
	disabled := &models.Subscription{URL: "https://c.example.com", Events: []string{"message.sent"}, Secret: "s3"}
	for _, s := range []*models.Subscription{matching, other, disabled} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("Failed to create subscription: %v", err)
		}
	}
	if err := repo.UpdateStatus(disabled.ID, models.SubscriptionDisabled); err != nil {
		t.Fatalf("Failed to disable subscription: %v", err)
	}

	subs, err := repo.ActiveForEvent("message.sent")
	if err != nil {
		t.Fatalf("ActiveForEvent returned error: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("Expected 1 matching subscription, got %d", len(subs))
	}
	if subs[0].ID != matching.ID {
		t.Errorf("Wrong subscription matched: %s", subs[0].ID)
	}
}

func TestSubscriptionRepository_UpdateKeepsSecret(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewSubscriptionRepository(db)

	sub := &models.Subscription{URL: "https://a.example.com", Events: []string{"message.sent"}, Secret: "whsec_original"}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("Failed to create subscription: %v", err)
	}

	sub.URL = "https://a.example.com/v2"
	sub.Secret = "whsec_attempted_change"
	if err := repo.Update(sub); err != nil {
		t.Fatalf("Failed to update subscription: %v", err)
	}

	fetched, err := repo.GetByID(sub.ID)
	if err != nil {
		t.Fatalf("Failed to get subscription: %v", err)
	}
	if fetched.URL != "https://a.example.com/v2" {
		t.Errorf("URL not updated: %s", fetched.URL)
	}
	if fetched.Secret != "whsec_original" {
		t.Errorf("Secret must be immutable, got %s", fetched.Secret)
	}
}

func TestDeliveryLogRepository_CountFailuresSince(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewDeliveryLogRepository(db)

	now := time.Now().Unix()
	entries := []*models.DeliveryLog{
		{ID: "d1", SubscriptionID: "wh_1", Event: "message.sent", Payload: "{}", Status: models.DeliveryFailed, CreatedAt: now},
		{ID: "d2", SubscriptionID: "wh_1", Event: "message.sent", Payload: "{}", Status: models.DeliveryFailed, CreatedAt: now},
		{ID: "d3", SubscriptionID: "wh_1", Event: "message.sent", Payload: "{}", Status: models.DeliveryDelivered, CreatedAt: now},
		{ID: "d4", SubscriptionID: "wh_2", Event: "message.sent", Payload: "{}", Status: models.DeliveryFailed, CreatedAt: now},
		// Older than the window
		{ID: "d5", SubscriptionID: "wh_2", Event: "message.sent", Payload: "{}", Status: models.DeliveryFailed, CreatedAt: now - 90000},
	}
	for _, e := range entries {
		if err := repo.Insert(e); err != nil {
			t.Fatalf("Failed to insert delivery: %v", err)
		}
	}

	counts, err := repo.CountFailuresSince(now - 86400)
	if err != nil {
		t.Fatalf("CountFailuresSince returned error: %v", err)
	}
	if counts["wh_1"] != 2 {
		t.Errorf("wh_1 failures = %d, want 2", counts["wh_1"])
	}
	if counts["wh_2"] != 1 {
		t.Errorf("wh_2 failures = %d, want 1", counts["wh_2"])
	}
}

func TestMessageRepository_Lifecycle(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewMessageRepository(db)

	now := time.Now().Unix()
	msg := &models.Message{
		ID:        "msg_1",
		SessionID: "sess-1",
		Direction: models.MessageOutbound,
		Recipient: "+15550000001",
		Body:      "hello",
		Status:    models.MessageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(msg); err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}

	if err := repo.MarkSent("msg_1", "prov-1", now+1); err != nil {
		t.Fatalf("MarkSent returned error: %v", err)
	}
	fetched, _ := repo.GetByID("msg_1")
	if fetched.Status != models.MessageSent || fetched.ProviderID != "prov-1" {
		t.Fatalf("unexpected message after MarkSent: %+v", fetched)
	}

	if err := repo.MarkAckByProvider("prov-1", models.MessageRead, now+2); err != nil {
		t.Fatalf("MarkAckByProvider returned error: %v", err)
	}
	fetched, _ = repo.GetByID("msg_1")
	if fetched.Status != models.MessageRead {
		t.Fatalf("expected read status, got %s", fetched.Status)
	}

	// A late delivered ack must not downgrade a read message.
	if err := repo.MarkAckByProvider("prov-1", models.MessageDelivered, now+3); err != nil {
		t.Fatalf("MarkAckByProvider returned error: %v", err)
	}
	fetched, _ = repo.GetByID("msg_1")
	if fetched.Status != models.MessageRead {
		t.Fatalf("delivered ack downgraded read message to %s", fetched.Status)
	}
}

func TestMessageRepository_ListBySession(t *testing.T) {
	db := setupTenantDB(t)
	repo := NewMessageRepository(db)

	now := time.Now().Unix()
	for i, id := range []string{"msg_1", "msg_2", "msg_3"} {
		sessID := "sess-1"
		if id == "msg_3" {
			sessID = "sess-2"
		}
		msg := &models.Message{
			ID:        id,
			SessionID: sessID,
			Direction: models.MessageOutbound,
			Body:      "hello",
			Status:    models.MessageQueued,
			CreatedAt: now + int64(i),
			UpdatedAt: now + int64(i),
		}
		if err := repo.Create(msg); err != nil {
			t.Fatalf("Failed to create message: %v", err)
		}
	}

	msgs, err := repo.ListBySession("sess-1", 10, 0)
	if err != nil {
		t.Fatalf("ListBySession returned error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "msg_2" {
		t.Errorf("Expected newest first, got %s", msgs[0].ID)
	}
}
