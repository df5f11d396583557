package api

import (
	"net/http"

	"github.com/tvermeulen/disporelay/internal/metrics"
	"github.com/tvermeulen/disporelay/internal/queue"
)

type MetricsHandler struct {
	agg   *metrics.Aggregator
	queue *queue.Queue
}

func NewMetricsHandler(agg *metrics.Aggregator, q *queue.Queue) *MetricsHandler {
	return &MetricsHandler{agg: agg, queue: q}
}

func (h *MetricsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"service":         "disporelay",
		"queue_available": h.queue.Available(),
	})
}

func (h *MetricsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	m := h.agg.Calculate()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":     m,
		"queue_depth": h.queue.Count(r.Context()),
	})
}
