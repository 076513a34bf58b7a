package handlers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "wagate/internal/api/context"
	"wagate/internal/pkg/errors"
	"wagate/internal/platform/audit"
	"wagate/internal/platform/auth"
	"wagate/internal/platform/models"
	"wagate/internal/platform/repositories"
)

type APIKeyHandler struct {
	keyRepo *repositories.APIKeyRepository
	audit   *audit.Logger
}

func NewAPIKeyHandler(keyRepo *repositories.APIKeyRepository, auditLog *audit.Logger) *APIKeyHandler {
	return &APIKeyHandler{keyRepo: keyRepo, audit: auditLog}
}

// generateAPIKey returns the raw key, its hash and the display prefix.
// Only the hash is stored; the raw key is shown exactly once.
func generateAPIKey() (raw, hash, prefix string, err error) {
	buf := make([]byte, 24)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	raw = "wg_live_" + hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(sum[:])
	prefix = raw[:16]
	return raw, hash, prefix, nil
}

type createAPIKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req struct {
		Name      string   `json:"name"`
		Scopes    []string `json:"scopes"`
		ExpiresIn int64    `json:"expires_in_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Name is required", nil)
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{"read"}
	}

	raw, hash, prefix, err := generateAPIKey()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate key", nil)
		return
	}

	key := &models.APIKey{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		Name:           req.Name,
		KeyHash:        hash,
		KeyPrefix:      prefix,
		Scopes:         req.Scopes,
	}
	if req.ExpiresIn > 0 {
		exp := time.Now().AddDate(0, 0, int(req.ExpiresIn)).Unix()
		key.ExpiresAt = &exp
	}

	if err := h.keyRepo.Create(key); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create API key", nil)
		return
	}

	h.audit.Log(r.Context(), "api_key.create", "api_key", key.ID, map[string]interface{}{"name": key.Name})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createAPIKeyResponse{
		APIKey: key,
		Key:    raw,
	})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	keys, err := h.keyRepo.ListByOrg(claims.OrganizationID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list API keys", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(keys)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("key_id")

	if err := h.keyRepo.Revoke(id); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to revoke API key", nil)
		return
	}

	h.audit.Log(r.Context(), "api_key.revoke", "api_key", id, nil)

	w.WriteHeader(http.StatusNoContent)
}
