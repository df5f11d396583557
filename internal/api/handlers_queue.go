package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/queue"
	"github.com/tvermeulen/disporelay/internal/storage"
	"github.com/tvermeulen/disporelay/internal/submission"
)

type QueueHandler struct {
	svc   *submission.Service
	queue *queue.Queue
}

func NewQueueHandler(svc *submission.Service, q *queue.Queue) *QueueHandler {
	return &QueueHandler{svc: svc, queue: q}
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.GetAll(r.Context())
	if errors.Is(err, storage.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "local store unavailable")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	if pending == nil {
		pending = []models.PendingSubmission{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(pending),
		"pending": pending,
	})
}

func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	result := h.svc.ProcessQueue(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (h *QueueHandler) Discard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Dequeue(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "local store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to discard entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"discarded": id})
}
