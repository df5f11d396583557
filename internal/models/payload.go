package models

import "strings"

type RoleType string

const (
	RoleAssistant RoleType = "ASSISTANT"
	RolePAT       RoleType = "PAT"
	RoleJobiste   RoleType = "JOBISTE"
	RoleAutre     RoleType = "AUTRE"
)

func (r RoleType) Known() bool {
	switch r {
	case RoleAssistant, RolePAT, RoleJobiste, RoleAutre:
		return true
	}
	return false
}

type Availability struct {
	CreneauID     string `json:"creneau_id"`
	EstDisponible bool   `json:"est_disponible"`
}

// SubmissionPayload is the wire shape of one availability form submission.
// It is immutable once constructed for a given attempt.
type SubmissionPayload struct {
	SessionID        string         `json:"session_id"`
	SurveillantID    *string        `json:"surveillant_id"`
	Email            string         `json:"email"`
	Nom              string         `json:"nom"`
	Prenom           string         `json:"prenom"`
	TypeSurveillant  RoleType       `json:"type_surveillant"`
	Telephone        string         `json:"telephone,omitempty"`
	RemarqueGenerale string         `json:"remarque_generale,omitempty"`
	Availabilities   []Availability `json:"availabilities"`
}

// NormalizedEmail is the form the backend keys its idempotent upsert on,
// together with the session id.
func (p SubmissionPayload) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(p.Email))
}
