package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "wagate/internal/api/context"
	"wagate/internal/engine/admission"
	"wagate/internal/engine/messages"
	"wagate/internal/engine/sessions"
	"wagate/internal/pkg/errors"
	"wagate/internal/platform/database"
	"wagate/internal/platform/repositories"
)

type MessageHandler struct {
	service  *messages.Service
	sessions *sessions.Service
}

func NewMessageHandler(service *messages.Service, sessionSvc *sessions.Service) *MessageHandler {
	return &MessageHandler{service: service, sessions: sessionSvc}
}

// Send queues an outbound message. Admitted sends return 202 with the
// advisory delay; the actual dispatch happens asynchronously.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	var req struct {
		SessionID string `json:"session_id"`
		Recipient string `json:"recipient"`
		Body      string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.SessionID == "" || req.Recipient == "" || req.Body == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "session_id, recipient and body are required", nil)
		return
	}

	sess, err := h.sessions.Get(tenantCtx.OrgID, req.SessionID)
	if err != nil {
		if stderrors.Is(err, sessions.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	store := repositories.NewMessageRepository(tenantCtx.DB)
	res, msg, err := h.service.Send(store, tenantCtx.OrgID, sess.ID, req.Recipient, req.Body)
	if err != nil {
		if stderrors.Is(err, admission.ErrMissingClient) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "session_id is required", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to queue message", nil)
		return
	}

	if !res.Allowed {
		if res.Reason == admission.ReasonContent {
			errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, "Message body was rejected by the content screen", nil)
			return
		}
		retryAfter := int(res.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Send rate limit exceeded", map[string]interface{}{
			"reason":              string(res.Reason),
			"retry_after_seconds": retryAfter,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":  msg,
		"delay_ms": res.Delay.Milliseconds(),
	})
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := (page - 1) * limit

	repo := repositories.NewMessageRepository(tenantCtx.DB)

	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		list, err := repo.ListBySession(sessionID, limit, offset)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list messages", nil)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
		return
	}

	list, err := repo.List(limit, offset)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list messages", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	repo := repositories.NewMessageRepository(tenantCtx.DB)
	msg, err := repo.GetByID(params.ByName("message_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if msg == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Message not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msg)
}
