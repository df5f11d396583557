package storage

import (
	"context"
	"errors"

	"github.com/tvermeulen/disporelay/internal/models"
)

// ErrUnavailable is returned by components whose local store could not be
// opened. Callers degrade to a no-op instead of failing.
var ErrUnavailable = errors.New("local store unavailable")

type Store interface {
	// Pending submissions
	CreatePending(ctx context.Context, p *models.PendingSubmission) error
	GetPending(ctx context.Context, id string) (*models.PendingSubmission, error)
	ListPending(ctx context.Context) ([]models.PendingSubmission, error)
	UpsertPending(ctx context.Context, p *models.PendingSubmission) error
	DeletePending(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int, error)

	// Draft (single overwrite slot)
	PutDraft(ctx context.Context, d *models.FormDraft) error
	GetDraft(ctx context.Context) (*models.FormDraft, error)
	DeleteDraft(ctx context.Context) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
