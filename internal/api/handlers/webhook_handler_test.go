package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	apiContext "wagate/internal/api/context"
	"wagate/internal/platform/audit"
	"wagate/internal/platform/database"
	"wagate/internal/platform/models"
	"wagate/internal/platform/repositories"
)

func setupWebhookHandler(t *testing.T) (*WebhookHandler, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE webhook_subscriptions (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	return NewWebhookHandler(nil, audit.NewLogger(db)), db
}

func tenantRequest(method, target, body string, db *sql.DB) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), apiContext.Tenant, &database.TenantContext{
		OrgID:   "org_test",
		OrgSlug: "test",
		DB:      db,
	})
	return req.WithContext(ctx)
}

func TestWebhookHandler_Create(t *testing.T) {
	handler, db := setupWebhookHandler(t)

	body := `{"url": "https://example.com/hook", "events": ["message.sent", "message.failed"]}`
	rec := httptest.NewRecorder()
	handler.Create(rec, tenantRequest(http.MethodPost, "/api/v1/webhooks", body, db))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.HasPrefix(resp.Secret, "whsec_") {
		t.Errorf("Expected whsec_ secret in create response, got %q", resp.Secret)
	}
	if resp.Status != models.SubscriptionActive {
		t.Errorf("Expected active status, got %q", resp.Status)
	}

	stored, err := repositories.NewSubscriptionRepository(db).GetByID(resp.ID)
	if err != nil || stored == nil {
		t.Fatalf("Subscription not persisted: %v", err)
	}
	if stored.Secret != resp.Secret {
		t.Error("Stored secret does not match the one returned at registration")
	}
}

func TestWebhookHandler_Create_Invalid(t *testing.T) {
	handler, db := setupWebhookHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad scheme", `{"url": "ftp://example.com/hook", "events": ["message.sent"]}`},
		{"relative url", `{"url": "/hook", "events": ["message.sent"]}`},
		{"unknown event", `{"url": "https://example.com/hook", "events": ["message.vanished"]}`},
		{"no events", `{"url": "https://example.com/hook", "events": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Create(rec, tenantRequest(http.MethodPost, "/api/v1/webhooks", tc.body, db))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestWebhookHandler_List_RedactsSecret(t *testing.T) {
	handler, db := setupWebhookHandler(t)

	create := `{"url": "https://example.com/hook", "events": ["message.sent"]}`
	rec := httptest.NewRecorder()
	handler.Create(rec, tenantRequest(http.MethodPost, "/api/v1/webhooks", create, db))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.List(rec, tenantRequest(http.MethodGet, "/api/v1/webhooks", "", db))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "whsec_") {
		t.Error("List response leaked the signing secret")
	}
}
