package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/storage"
	"github.com/tvermeulen/disporelay/internal/submission"
)

type DraftHandler struct {
	svc *submission.Service
}

func NewDraftHandler(svc *submission.Service) *DraftHandler {
	return &DraftHandler{svc: svc}
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	d := h.svc.LoadDraft(r.Context())
	if d == nil {
		writeError(w, http.StatusNotFound, "no draft")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DraftHandler) Put(w http.ResponseWriter, r *http.Request) {
	var d models.FormDraft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.SaveDraft(d); err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "draft autosave disabled, local store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save draft")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearDraft(r.Context()); err != nil && !errors.Is(err, storage.ErrUnavailable) {
		writeError(w, http.StatusInternalServerError, "failed to clear draft")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
