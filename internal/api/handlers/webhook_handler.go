package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "wagate/internal/api/context"
	"wagate/internal/engine/webhooks"
	"wagate/internal/pkg/errors"
	"wagate/internal/platform/audit"
	"wagate/internal/platform/database"
	"wagate/internal/platform/models"
	"wagate/internal/platform/repositories"
)

type WebhookHandler struct {
	engine *webhooks.Engine
	audit  *audit.Logger
}

func NewWebhookHandler(engine *webhooks.Engine, auditLog *audit.Logger) *WebhookHandler {
	return &WebhookHandler{engine: engine, audit: auditLog}
}

// newSecret builds the per-subscription signing secret. Returned to the
// caller exactly once, at registration.
func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

func validSubscriptionURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validEvents(events []string) (string, bool) {
	if len(events) == 0 {
		return "", false
	}
	for _, e := range events {
		if !webhooks.KnownEvent(e) {
			return e, false
		}
	}
	return "", true
}

type createSubscriptionResponse struct {
	*models.Subscription
	Secret string `json:"secret"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	var req struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if !validSubscriptionURL(req.URL) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "URL must be an absolute http or https URL", nil)
		return
	}
	if unknown, ok := validEvents(req.Events); !ok {
		if unknown != "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown event type: "+unknown, nil)
		} else {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "At least one event type is required", nil)
		}
		return
	}

	secret, err := newSecret()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate secret", nil)
		return
	}

	sub := &models.Subscription{
		OrganizationID: tenantCtx.OrgID,
		URL:            req.URL,
		Events:         req.Events,
		Secret:         secret,
	}

	repo := repositories.NewSubscriptionRepository(tenantCtx.DB)
	if err := repo.Create(sub); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create subscription", nil)
		return
	}

	h.audit.Log(r.Context(), "webhook.create", "webhook_subscription", sub.ID, map[string]interface{}{"url": sub.URL})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createSubscriptionResponse{
		Subscription: sub,
		Secret:       secret,
	})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	repo := repositories.NewSubscriptionRepository(tenantCtx.DB)
	subs, err := repo.List()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list subscriptions", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subs)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	repo := repositories.NewSubscriptionRepository(tenantCtx.DB)
	sub, err := repo.GetByID(id)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if sub == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Subscription not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	var req struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
		Status string   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	repo := repositories.NewSubscriptionRepository(tenantCtx.DB)
	sub, err := repo.GetByID(id)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if sub == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Subscription not found", nil)
		return
	}

	if req.URL != "" {
		if !validSubscriptionURL(req.URL) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "URL must be an absolute http or https URL", nil)
			return
		}
		sub.URL = req.URL
	}
	if len(req.Events) > 0 {
		if unknown, ok := validEvents(req.Events); !ok {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown event type: "+unknown, nil)
			return
		}
		sub.Events = req.Events
	}
	if req.Status != "" {
		if req.Status != models.SubscriptionActive && req.Status != models.SubscriptionDisabled {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Status must be active or disabled", nil)
			return
		}
		sub.Status = req.Status
	}

	if err := repo.Update(sub); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update subscription", nil)
		return
	}

	h.audit.Log(r.Context(), "webhook.update", "webhook_subscription", sub.ID, map[string]interface{}{"url": sub.URL, "status": sub.Status})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	repo := repositories.NewSubscriptionRepository(tenantCtx.DB)
	if err := repo.Delete(id); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to delete subscription", nil)
		return
	}

	h.audit.Log(r.Context(), "webhook.delete", "webhook_subscription", id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// Test sends a signed test event synchronously and reports the outcome
// without writing a delivery log.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	repo := repositories.NewSubscriptionRepository(tenantCtx.DB)
	sub, err := repo.GetByID(id)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if sub == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Subscription not found", nil)
		return
	}

	result := h.engine.TestWebhook(sub)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *WebhookHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("webhook_id")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := (page - 1) * limit

	repo := repositories.NewDeliveryLogRepository(tenantCtx.DB)
	entries, err := repo.ListBySubscription(id, limit, offset)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list deliveries", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
