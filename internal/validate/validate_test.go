package validate

import (
	"strings"
	"testing"

	"github.com/tvermeulen/disporelay/internal/models"
)

func validPayload() models.SubmissionPayload {
	return models.SubmissionPayload{
		SessionID:       "S1",
		Email:           "a@x.be",
		Nom:             "Durand",
		Prenom:          "Al",
		TypeSurveillant: models.RoleAssistant,
		Availabilities: []models.Availability{
			{CreneauID: "C1", EstDisponible: true},
		},
	}
}

func TestSubmissionValid(t *testing.T) {
	r := Submission(validPayload())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestSubmissionInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.SubmissionPayload)
		wantErr string
	}{
		{"missing session", func(p *models.SubmissionPayload) { p.SessionID = "  " }, "session_id"},
		{"bad email", func(p *models.SubmissionPayload) { p.Email = "not-an-email" }, "email"},
		{"email with spaces", func(p *models.SubmissionPayload) { p.Email = "a b@x.be" }, "email"},
		{"short nom", func(p *models.SubmissionPayload) { p.Nom = "D" }, "nom"},
		{"nom only whitespace", func(p *models.SubmissionPayload) { p.Nom = " D " }, "nom"},
		{"short prenom", func(p *models.SubmissionPayload) { p.Prenom = "A" }, "prenom"},
		{"unknown role", func(p *models.SubmissionPayload) { p.TypeSurveillant = "WIZARD" }, "type_surveillant"},
		{"no availabilities", func(p *models.SubmissionPayload) { p.Availabilities = nil }, "availability"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			r := Submission(p)
			if r.Valid {
				t.Fatalf("expected invalid")
			}
			found := false
			for _, e := range r.Errors {
				if strings.Contains(e, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error mentioning %q, got %v", tt.wantErr, r.Errors)
			}
		})
	}
}

func TestSubmissionAccumulatesErrors(t *testing.T) {
	r := Submission(models.SubmissionPayload{})
	if r.Valid {
		t.Fatal("empty payload should be invalid")
	}
	if len(r.Errors) < 5 {
		t.Errorf("expected every check to fail, got %d errors: %v", len(r.Errors), r.Errors)
	}
}
