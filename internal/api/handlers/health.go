package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wagate/internal/platform/database"
	"wagate/internal/platform/transport"
)

// DeliveryQueue is the slice of the webhook engine the health check
// needs: how many deliveries are waiting for a worker.
type DeliveryQueue interface {
	QueueDepth() int
}

type HealthHandler struct {
	globalDB  *database.GlobalDB
	transport transport.Transport
	queue     DeliveryQueue
}

func NewHealthHandler(globalDB *database.GlobalDB, tp transport.Transport, queue DeliveryQueue) *HealthHandler {
	return &HealthHandler{globalDB: globalDB, transport: tp, queue: queue}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.globalDB.DB.Ping(); err != nil {
		checks["global_db"] = "unhealthy: " + err.Error()
	} else {
		checks["global_db"] = "healthy"
	}

	if h.transport != nil {
		checks["transport"] = "healthy"
	} else {
		checks["transport"] = "unhealthy: not configured"
	}

	if h.queue != nil {
		checks["webhook_queue_depth"] = strconv.Itoa(h.queue.QueueDepth())
	}

	status := "healthy"
	for _, check := range checks {
		if strings.HasPrefix(check, "unhealthy") {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
