package workers

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"wagate/internal/engine/analytics"
	"wagate/internal/platform/config"
	"wagate/internal/platform/database"
	"wagate/internal/platform/models"
	"wagate/internal/platform/repositories"
)

const tenantSchema = `
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
`

const globalSchema = `
CREATE TABLE organizations (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	db_file_path TEXT NOT NULL,
	plan_tier TEXT NOT NULL,
	session_quota INTEGER NOT NULL,
	member_quota INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);
CREATE TABLE wa_sessions (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	last_connected_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type fixture struct {
	runner   *Runner
	clock    *clockwork.FakeClock
	globalDB *sql.DB
	tenantDB *sql.DB
	org      *models.Organization
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	globalDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open global db: %v", err)
	}
	t.Cleanup(func() { globalDB.Close() })
	if _, err := globalDB.Exec(globalSchema); err != nil {
		t.Fatalf("Failed to create global tables: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "tenant.db")
	tenantDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("Failed to open tenant db: %v", err)
	}
	t.Cleanup(func() { tenantDB.Close() })
	if _, err := tenantDB.Exec(tenantSchema); err != nil {
		t.Fatalf("Failed to create tenant tables: %v", err)
	}

	orgRepo := repositories.NewOrganizationRepository(globalDB)
	org := &models.Organization{
		ID:           "org_worker_test",
		Slug:         "worker-test",
		Name:         "Worker Test",
		DBFilePath:   dbPath,
		PlanTier:     "business",
		SessionQuota: 5,
		MemberQuota:  25,
		CreatedAt:    time.Now().Unix(),
		UpdatedAt:    time.Now().Unix(),
	}
	if err := orgRepo.Create(org); err != nil {
		t.Fatalf("Failed to create org: %v", err)
	}

	pool := database.NewTenantDBPool(config.TenantDBConfig{MaxConnectionsPerOrg: 2})
	t.Cleanup(pool.CloseAll)

	clock := clockwork.NewFakeClock()
	runner := NewRunner(
		orgRepo,
		repositories.NewSessionRepository(globalDB),
		pool,
		config.WebhooksConfig{FailureThreshold: 3, FailureWindow: 24 * time.Hour},
		clock,
	)

	return &fixture{runner: runner, clock: clock, globalDB: globalDB, tenantDB: tenantDB, org: org}
}

func insertFailures(t *testing.T, db *sql.DB, subID string, n int, ts int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := db.Exec(
			`INSERT INTO webhook_deliveries (id, subscription_id, event, payload, status, http_status, attempt_count, created_at)
			 VALUES (?, ?, 'message.sent', '{}', 'failed', 500, 5, ?)`,
			fmt.Sprintf("del_%s_%d_%d", subID, ts, i), subID, ts,
		)
		if err != nil {
			t.Fatalf("Failed to insert delivery: %v", err)
		}
	}
}

func TestSweepFailingSubscriptions(t *testing.T) {
	f := setupFixture(t)
	now := f.clock.Now()

	subs := repositories.NewSubscriptionRepository(f.tenantDB)
	failing := &models.Subscription{URL: "https://example.com/failing", Events: []string{"message.sent"}, Secret: "s1"}
	healthy := &models.Subscription{URL: "https://example.com/healthy", Events: []string{"message.sent"}, Secret: "s2"}
	recovered := &models.Subscription{URL: "https://example.com/recovered", Events: []string{"message.sent"}, Secret: "s3"}
	for _, sub := range []*models.Subscription{failing, healthy, recovered} {
		if err := subs.Create(sub); err != nil {
			t.Fatalf("Failed to create subscription: %v", err)
		}
	}

	insertFailures(t, f.tenantDB, failing.ID, 4, now.Unix())
	insertFailures(t, f.tenantDB, healthy.ID, 2, now.Unix())
	// Old failures outside the 24h window must not count.
	insertFailures(t, f.tenantDB, recovered.ID, 10, now.Add(-48*time.Hour).Unix())

	f.runner.SweepFailingSubscriptions()

	got, err := subs.GetByID(failing.ID)
	if err != nil {
		t.Fatalf("Failed to get subscription: %v", err)
	}
	if got.Status != models.SubscriptionDisabled {
		t.Errorf("Expected failing subscription disabled, got %s", got.Status)
	}

	for _, sub := range []*models.Subscription{healthy, recovered} {
		got, err := subs.GetByID(sub.ID)
		if err != nil {
			t.Fatalf("Failed to get subscription: %v", err)
		}
		if got.Status != models.SubscriptionActive {
			t.Errorf("Subscription %s should stay active, got %s", sub.URL, got.Status)
		}
	}
}

func TestAggregateDailyStats(t *testing.T) {
	f := setupFixture(t)

	date := "2026-03-15"
	dayStart, _ := time.Parse("2006-01-02", date)
	ts := dayStart.Add(6 * time.Hour).Unix()

	rows := []struct {
		direction, status string
	}{
		{models.MessageOutbound, models.MessageSent},
		{models.MessageOutbound, models.MessageDelivered},
		{models.MessageOutbound, models.MessageFailed},
		{models.MessageInbound, models.MessageReceived},
	}
	for i, row := range rows {
		_, err := f.tenantDB.Exec(
			`INSERT INTO messages (id, session_id, direction, body, status, created_at, updated_at)
			 VALUES (?, 'sess_agg', ?, 'hi', ?, ?, ?)`,
			fmt.Sprintf("msg_%d", i), row.direction, row.status, ts, ts,
		)
		if err != nil {
			t.Fatalf("Failed to insert message: %v", err)
		}
	}

	f.runner.AggregateDailyStats(date)

	stats, err := analytics.NewRepository(f.tenantDB).GetDailyStats("sess_agg", date, date)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("Expected 1 stat row, got %d", len(stats))
	}
	stat := stats[0]
	if stat.Sent != 2 || stat.Delivered != 1 || stat.Failed != 1 || stat.Received != 1 {
		t.Errorf("Unexpected aggregates: %+v", stat)
	}
}

func TestExpireStaleSessions(t *testing.T) {
	f := setupFixture(t)
	now := f.clock.Now()

	sessionRepo := repositories.NewSessionRepository(f.globalDB)
	stale := &models.Session{
		ID:             "sess_stale",
		OrganizationID: f.org.ID,
		Name:           "stale",
		Status:         models.SessionPairing,
		CreatedAt:      now.Add(-2 * time.Hour).Unix(),
		UpdatedAt:      now.Add(-2 * time.Hour).Unix(),
	}
	fresh := &models.Session{
		ID:             "sess_fresh",
		OrganizationID: f.org.ID,
		Name:           "fresh",
		Status:         models.SessionPairing,
		CreatedAt:      now.Unix(),
		UpdatedAt:      now.Unix(),
	}
	connected := &models.Session{
		ID:             "sess_connected",
		OrganizationID: f.org.ID,
		Name:           "connected",
		Status:         models.SessionConnected,
		CreatedAt:      now.Add(-2 * time.Hour).Unix(),
		UpdatedAt:      now.Add(-2 * time.Hour).Unix(),
	}
	for _, sess := range []*models.Session{stale, fresh, connected} {
		if err := sessionRepo.Create(sess); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
	}

	f.runner.ExpireStaleSessions()

	want := map[string]string{
		"sess_stale":     models.SessionExpired,
		"sess_fresh":     models.SessionPairing,
		"sess_connected": models.SessionConnected,
	}
	for id, status := range want {
		got, err := sessionRepo.GetByID(id)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got.Status != status {
			t.Errorf("Session %s: expected status %s, got %s", id, status, got.Status)
		}
	}
}
