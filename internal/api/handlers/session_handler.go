package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "wagate/internal/api/context"
	"wagate/internal/engine/sessions"
	"wagate/internal/pkg/errors"
	"wagate/internal/platform/audit"
	"wagate/internal/platform/database"
	"wagate/internal/platform/repositories"
)

type SessionHandler struct {
	service *sessions.Service
	orgRepo *repositories.OrganizationRepository
	audit   *audit.Logger
}

func NewSessionHandler(service *sessions.Service, orgRepo *repositories.OrganizationRepository, auditLog *audit.Logger) *SessionHandler {
	return &SessionHandler{service: service, orgRepo: orgRepo, audit: auditLog}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Name is required", nil)
		return
	}

	org, err := h.orgRepo.GetByID(tenantCtx.OrgID)
	if err != nil || org == nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load organization", nil)
		return
	}

	sess, err := h.service.Create(r.Context(), org, req.Name)
	if err != nil {
		if stderrors.Is(err, sessions.ErrQuotaExceeded) {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Session quota exceeded for your plan", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create session", nil)
		return
	}

	h.audit.Log(r.Context(), "session.create", "session", sess.ID, map[string]interface{}{"name": sess.Name})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	list, err := h.service.List(tenantCtx.OrgID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list sessions", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	sess, err := h.service.Get(tenantCtx.OrgID, params.ByName("session_id"))
	if err != nil {
		if stderrors.Is(err, sessions.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// QRCode streams the pairing code as a PNG image. The size query
// parameter controls the output dimensions in pixels.
func (h *SessionHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	png, err := h.service.PairingQR(tenantCtx.OrgID, params.ByName("session_id"), size)
	if err != nil {
		switch {
		case stderrors.Is(err, sessions.ErrNotFound):
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
		case stderrors.Is(err, sessions.ErrNotPairing):
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeSessionNotReady, "Session is not waiting to be paired", nil)
		default:
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate QR code", nil)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("session_id")

	if err := h.service.Delete(tenantCtx.OrgID, id); err != nil {
		if stderrors.Is(err, sessions.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to delete session", nil)
		return
	}

	h.audit.Log(r.Context(), "session.delete", "session", id, nil)

	w.WriteHeader(http.StatusNoContent)
}
