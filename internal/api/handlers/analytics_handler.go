package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "wagate/internal/api/context"
	"wagate/internal/engine/analytics"
	"wagate/internal/pkg/errors"
	"wagate/internal/platform/database"
)

type AnalyticsHandler struct{}

func NewAnalyticsHandler() *AnalyticsHandler {
	return &AnalyticsHandler{}
}

// SessionStats returns the daily aggregates for one session. Defaults to
// the trailing 30 days when no range is given.
func (h *AnalyticsHandler) SessionStats(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	sessionID := params.ByName("session_id")

	endDate := r.URL.Query().Get("end_date")
	if endDate == "" {
		endDate = time.Now().UTC().Format("2006-01-02")
	}
	startDate := r.URL.Query().Get("start_date")
	if startDate == "" {
		startDate = time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
	}
	for _, d := range []string{startDate, endDate} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Dates must be in YYYY-MM-DD format", nil)
			return
		}
	}

	svc := analytics.NewService(analytics.NewRepository(tenantCtx.DB))
	stats, err := svc.GetStatsOverview(sessionID, startDate, endDate)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load stats", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id": sessionID,
		"start_date": startDate,
		"end_date":   endDate,
		"stats":      stats,
	})
}

// Overview returns the org-wide dashboard: per-day message totals and
// the webhook delivery success rate over the trailing 30 days.
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	now := time.Now().UTC()
	endDate := now.Format("2006-01-02")
	startDate := now.AddDate(0, 0, -30).Format("2006-01-02")

	svc := analytics.NewService(analytics.NewRepository(tenantCtx.DB))
	overview, err := svc.GetOverview(startDate, endDate, now.AddDate(0, 0, -30).Unix())
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load overview", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(overview)
}

// DeliverySummary reports webhook delivery outcomes over a trailing
// window, 7 days by default.
func (h *AnalyticsHandler) DeliverySummary(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*database.TenantContext)

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "days must be between 1 and 90", nil)
			return
		}
		days = n
	}

	since := time.Now().AddDate(0, 0, -days).Unix()

	svc := analytics.NewService(analytics.NewRepository(tenantCtx.DB))
	summary, err := svc.GetDeliverySummary(since)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load delivery summary", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
