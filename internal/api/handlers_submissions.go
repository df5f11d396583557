package api

import (
	"encoding/json"
	"net/http"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/submission"
)

const maxPayloadSize = 256 * 1024 // 256KB

type SubmissionHandler struct {
	svc *submission.Service
}

func NewSubmissionHandler(svc *submission.Service) *SubmissionHandler {
	return &SubmissionHandler{svc: svc}
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	var payload models.SubmissionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.svc.Submit(r.Context(), payload)

	switch {
	case result.Success:
		writeJSON(w, http.StatusOK, result)
	case result.Queued:
		writeJSON(w, http.StatusAccepted, result)
	case result.NeedsExport:
		writeJSON(w, http.StatusServiceUnavailable, result)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	}
}

func (h *SubmissionHandler) Export(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	var payload models.SubmissionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.svc.Export(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="disponibilites.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
