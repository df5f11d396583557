package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tvermeulen/disporelay/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_submissions (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			enqueued_at DATETIME NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_at DATETIME,
			last_error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS form_draft (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			email TEXT NOT NULL,
			session_id TEXT NOT NULL,
			form_fields TEXT NOT NULL DEFAULT '{}',
			availability_map TEXT NOT NULL DEFAULT '{}',
			saved_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_enqueued ON pending_submissions(enqueued_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Pending submissions ---

func (s *SQLiteStore) CreatePending(ctx context.Context, p *models.PendingSubmission) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_submissions (id, payload, enqueued_at, attempts, last_attempt_at, last_error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, string(payload), p.EnqueuedAt, p.Attempts, p.LastAttemptAt, p.LastError,
	)
	return err
}

func (s *SQLiteStore) scanPending(row interface{ Scan(...interface{}) error }) (*models.PendingSubmission, error) {
	var p models.PendingSubmission
	var payload string
	err := row.Scan(&p.ID, &payload, &p.EnqueuedAt, &p.Attempts, &p.LastAttemptAt, &p.LastError)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for %s: %w", p.ID, err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetPending(ctx context.Context, id string) (*models.PendingSubmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, payload, enqueued_at, attempts, last_attempt_at, last_error FROM pending_submissions WHERE id = ?`, id)
	p, err := s.scanPending(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]models.PendingSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, enqueued_at, attempts, last_attempt_at, last_error FROM pending_submissions ORDER BY enqueued_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []models.PendingSubmission
	for rows.Next() {
		p, err := s.scanPending(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *p)
	}
	return pending, rows.Err()
}

func (s *SQLiteStore) UpsertPending(ctx context.Context, p *models.PendingSubmission) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_submissions (id, payload, enqueued_at, attempts, last_attempt_at, last_error)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   payload = excluded.payload,
		   attempts = excluded.attempts,
		   last_attempt_at = excluded.last_attempt_at,
		   last_error = excluded.last_error`,
		p.ID, string(payload), p.EnqueuedAt, p.Attempts, p.LastAttemptAt, p.LastError,
	)
	return err
}

func (s *SQLiteStore) DeletePending(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions`).Scan(&count)
	return count, err
}

// --- Draft ---

func (s *SQLiteStore) PutDraft(ctx context.Context, d *models.FormDraft) error {
	fields, _ := json.Marshal(d.FormFields)
	avail, _ := json.Marshal(d.AvailabilityMap)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO form_draft (slot, email, session_id, form_fields, availability_map, saved_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET
		   email = excluded.email,
		   session_id = excluded.session_id,
		   form_fields = excluded.form_fields,
		   availability_map = excluded.availability_map,
		   saved_at = excluded.saved_at`,
		d.Email, d.SessionID, string(fields), string(avail), d.SavedAt,
	)
	return err
}

func (s *SQLiteStore) GetDraft(ctx context.Context) (*models.FormDraft, error) {
	var d models.FormDraft
	var fields, avail string
	err := s.db.QueryRowContext(ctx,
		`SELECT email, session_id, form_fields, availability_map, saved_at FROM form_draft WHERE slot = 1`,
	).Scan(&d.Email, &d.SessionID, &fields, &avail, &d.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(fields), &d.FormFields)
	json.Unmarshal([]byte(avail), &d.AvailabilityMap)
	return &d, nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM form_draft WHERE slot = 1`)
	return err
}
