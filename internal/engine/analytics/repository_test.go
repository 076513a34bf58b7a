package analytics

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"wagate/internal/platform/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		recipient TEXT,
		sender TEXT,
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		provider_id TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE daily_stats (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		date TEXT NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0,
		delivered INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		received INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE(session_id, date)
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
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func insertMessage(t *testing.T, db *sql.DB, id, direction, status string, ts int64) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO messages (id, session_id, direction, body, status, created_at, updated_at) VALUES (?, 'sess-1', ?, 'x', ?, ?, ?)",
		id, direction, status, ts, ts,
	)
	if err != nil {
		t.Fatalf("failed to insert message: %v", err)
	}
}

func TestComputeDailyStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	day, _ := time.Parse("2006-01-02", "2026-08-25")
	ts := day.Add(10 * time.Hour).Unix()

	insertMessage(t, db, "m1", models.MessageOutbound, models.MessageSent, ts)
	insertMessage(t, db, "m2", models.MessageOutbound, models.MessageDelivered, ts)
	insertMessage(t, db, "m3", models.MessageOutbound, models.MessageRead, ts)
	insertMessage(t, db, "m4", models.MessageOutbound, models.MessageFailed, ts)
	insertMessage(t, db, "m5", models.MessageInbound, models.MessageReceived, ts)
	// Outside the day
	insertMessage(t, db, "m6", models.MessageOutbound, models.MessageSent, day.Add(30*time.Hour).Unix())

	stat, err := repo.ComputeDailyStats("sess-1", "2026-08-25")
	if err != nil {
		t.Fatalf("ComputeDailyStats returned error: %v", err)
	}
	if stat.Sent != 3 {
		t.Errorf("Sent = %d, want 3", stat.Sent)
	}
	if stat.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", stat.Delivered)
	}
	if stat.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stat.Failed)
	}
	if stat.Received != 1 {
		t.Errorf("Received = %d, want 1", stat.Received)
	}
}

func TestUpsertDailyStats_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	stat := &DailyStat{Date: "2026-08-25", SessionID: "sess-1", Sent: 5}
	if err := repo.UpsertDailyStats(stat); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	stat.Sent = 8
	if err := repo.UpsertDailyStats(stat); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	stats, err := repo.GetDailyStats("sess-1", "2026-08-25", "2026-08-25")
	if err != nil {
		t.Fatalf("GetDailyStats returned error: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 row, got %d", len(stats))
	}
	if stats[0].Sent != 8 {
		t.Errorf("Sent = %d, want 8", stats[0].Sent)
	}
}

func TestGetDeliverySummary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	now := time.Now().Unix()
	rows := []struct {
		id     string
		status string
		ts     int64
	}{
		{"d1", models.DeliveryDelivered, now},
		{"d2", models.DeliveryDelivered, now},
		{"d3", models.DeliveryFailed, now},
		{"d4", models.DeliveryDelivered, now - 7200},
	}
	for _, r := range rows {
		_, err := db.Exec(
			"INSERT INTO webhook_deliveries (id, subscription_id, event, payload, status, created_at) VALUES (?, 'wh-1', 'message.sent', '{}', ?, ?)",
			r.id, r.status, r.ts,
		)
		if err != nil {
			t.Fatalf("failed to insert delivery: %v", err)
		}
	}

	summary, err := repo.GetDeliverySummary(now - 3600)
	if err != nil {
		t.Fatalf("GetDeliverySummary returned error: %v", err)
	}
	if summary.Total != 3 || summary.Delivered != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.SuccessRate < 0.66 || summary.SuccessRate > 0.67 {
		t.Errorf("SuccessRate = %f, want ~0.667", summary.SuccessRate)
	}
}
