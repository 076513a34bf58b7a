package repositories

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"wagate/internal/platform/models"
)

func setupGlobalDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	query := `
	CREATE TABLE wa_sessions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		last_connected_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return db
}

func createSession(t *testing.T, repo *SessionRepository, id, orgID, status string, createdAt int64) {
	t.Helper()
	err := repo.Create(&models.Session{
		ID:             id,
		OrganizationID: orgID,
		Name:           "line",
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	db := setupGlobalDB(t)
	repo := NewSessionRepository(db)

	now := time.Now().Unix()
	createSession(t, repo, "sess_1", "org_1", models.SessionPairing, now)

	fetched, err := repo.GetByID("sess_1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if fetched.OrganizationID != "org_1" || fetched.Status != models.SessionPairing {
		t.Fatalf("unexpected session: %+v", fetched)
	}

	missing, err := repo.GetByID("sess_nope")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing session")
	}
}

func TestSessionRepository_UpdateStatusStampsConnection(t *testing.T) {
	db := setupGlobalDB(t)
	repo := NewSessionRepository(db)

	now := time.Now().Unix()
	createSession(t, repo, "sess_1", "org_1", models.SessionPairing, now)

	if err := repo.UpdateStatus("sess_1", models.SessionConnected, now+5); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	fetched, _ := repo.GetByID("sess_1")
	if fetched.Status != models.SessionConnected {
		t.Fatalf("status = %s, want connected", fetched.Status)
	}
	if fetched.LastConnectedAt == nil || *fetched.LastConnectedAt != now+5 {
		t.Fatal("last_connected_at not stamped on connect")
	}

	if err := repo.UpdateStatus("sess_1", models.SessionDisconnected, now+10); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	fetched, _ = repo.GetByID("sess_1")
	if fetched.LastConnectedAt == nil || *fetched.LastConnectedAt != now+5 {
		t.Fatal("last_connected_at must survive disconnect")
	}
}

func TestSessionRepository_CountByOrg(t *testing.T) {
	db := setupGlobalDB(t)
	repo := NewSessionRepository(db)

	now := time.Now().Unix()
	createSession(t, repo, "sess_1", "org_1", models.SessionConnected, now)
	createSession(t, repo, "sess_2", "org_1", models.SessionPairing, now)
	createSession(t, repo, "sess_3", "org_2", models.SessionConnected, now)

	count, err := repo.CountByOrg("org_1")
	if err != nil {
		t.Fatalf("CountByOrg returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestSessionRepository_ListStalePairing(t *testing.T) {
	db := setupGlobalDB(t)
	repo := NewSessionRepository(db)

	now := time.Now().Unix()
	createSession(t, repo, "sess_old", "org_1", models.SessionPairing, now-7200)
	createSession(t, repo, "sess_new", "org_1", models.SessionPairing, now)
	createSession(t, repo, "sess_live", "org_1", models.SessionConnected, now-7200)

	stale, err := repo.ListStalePairing(now - 3600)
	if err != nil {
		t.Fatalf("ListStalePairing returned error: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "sess_old" {
		t.Fatalf("unexpected stale set: %+v", stale)
	}
}
