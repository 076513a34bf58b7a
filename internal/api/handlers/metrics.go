package handlers

import (
	"fmt"
	"net/http"
)

// MetricsHandler exposes a minimal text exposition endpoint. A scraper
// can poll it today; a real collector registry can replace it later.
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "# HELP wagate_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE wagate_up gauge\n")
	fmt.Fprintf(w, "wagate_up 1\n")
}
