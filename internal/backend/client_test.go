package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/retry"
	"github.com/tvermeulen/disporelay/internal/signing"
)

func testPayload() models.SubmissionPayload {
	return models.SubmissionPayload{
		SessionID:       "S1",
		Email:           "A@X.be ",
		Nom:             "Durand",
		Prenom:          "Al",
		TypeSurveillant: models.RoleAssistant,
		Availabilities: []models.Availability{
			{CreneauID: "C1", EstDisponible: true},
		},
	}
}

func TestUpsertSubmission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/disponibilites" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("authorization = %q", got)
		}
		var p models.SubmissionPayload
		json.NewDecoder(r.Body).Decode(&p)
		json.NewEncoder(w).Encode(Record{
			ID:        "rec_1",
			SessionID: p.SessionID,
			Email:     p.NormalizedEmail(),
			Created:   true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", "", 5*time.Second, zerolog.Nop())
	rec, err := c.UpsertSubmission(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.ID != "rec_1" || rec.Email != "a@x.be" || !rec.Created {
		t.Errorf("record = %+v", rec)
	}
}

func TestUpsertSignsRequestWhenSecretSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, _ := strconv.ParseInt(r.Header.Get("X-Disporelay-Timestamp"), 10, 64)
		sig := r.Header.Get("X-Disporelay-Signature")
		if !signing.Verify("shh", body, ts, sig) {
			t.Error("signature does not verify")
		}
		json.NewEncoder(w).Encode(Record{ID: "rec_1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "shh", 5*time.Second, zerolog.Nop())
	if _, err := c.UpsertSubmission(context.Background(), testPayload()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestUpsertStatusErrorsCarryMarkers(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusConflict, "already there", retry.MarkerDuplicate},
		{http.StatusUnauthorized, "bad key", retry.MarkerAuth},
		{http.StatusBadRequest, "nope", retry.MarkerValidation},
		{http.StatusBadRequest, "VALIDATION_ERROR: missing nom", retry.MarkerValidation},
		{http.StatusInternalServerError, "boom", "backend returned 500"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		c := NewClient(srv.URL, "", "", 5*time.Second, zerolog.Nop())
		_, err := c.UpsertSubmission(context.Background(), testPayload())
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("status %d: err = %v, want marker %s", tt.status, err, tt.want)
		}
	}
}

func TestTerminalStatusClassifiesTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", 5*time.Second, zerolog.Nop())
	_, err := c.UpsertSubmission(context.Background(), testPayload())
	if retry.Classify(err) != retry.ClassTerminal {
		t.Errorf("409 should classify terminal, got err %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", 5*time.Second, zerolog.Nop())
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}

	c2 := NewClient("http://127.0.0.1:1", "", "", 500*time.Millisecond, zerolog.Nop())
	if err := c2.Health(context.Background()); err == nil {
		t.Error("expected error for unreachable backend")
	}
}

func TestAppendAudit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/audit" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var e AuditEntry
		json.NewDecoder(r.Body).Decode(&e)
		if e.Action != "availability_submitted" {
			t.Errorf("action = %s", e.Action)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "", 5*time.Second, zerolog.Nop())
	err := c.AppendAudit(context.Background(), AuditEntry{
		Action:    "availability_submitted",
		SessionID: "S1",
		Email:     "a@x.be",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Errorf("audit: %v", err)
	}
}
