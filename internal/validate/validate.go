package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tvermeulen/disporelay/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Submission checks the structural shape of a payload. It is pure and does
// no I/O. A failed check is never retried; it short-circuits the pipeline.
func Submission(p models.SubmissionPayload) Result {
	var errs []string

	if strings.TrimSpace(p.SessionID) == "" {
		errs = append(errs, "session_id is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(p.Email)) {
		errs = append(errs, "email is not a valid address")
	}
	if utf8.RuneCountInString(strings.TrimSpace(p.Nom)) < 2 {
		errs = append(errs, "nom must be at least 2 characters")
	}
	if utf8.RuneCountInString(strings.TrimSpace(p.Prenom)) < 2 {
		errs = append(errs, "prenom must be at least 2 characters")
	}
	if !p.TypeSurveillant.Known() {
		errs = append(errs, fmt.Sprintf("type_surveillant %q is not recognized", string(p.TypeSurveillant)))
	}
	if len(p.Availabilities) == 0 {
		errs = append(errs, "at least one availability is required")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
