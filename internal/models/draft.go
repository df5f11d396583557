package models

import "time"

// FormDraft is the single-slot autosaved snapshot of an in-progress form.
// Exactly one draft exists at a time; every save overwrites the previous one.
type FormDraft struct {
	Email           string            `json:"email"`
	SessionID       string            `json:"session_id"`
	FormFields      map[string]string `json:"form_fields"`
	AvailabilityMap map[string]bool   `json:"availability_map"`
	SavedAt         time.Time         `json:"saved_at"`
}
