package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/storage"
)

// Retention caps queued entries. Zero values keep the historical behavior:
// entries stay queued indefinitely until a replay succeeds or they are
// manually discarded.
type Retention struct {
	MaxAttempts int
	MaxAge      time.Duration
}

func (r Retention) expired(p models.PendingSubmission, now time.Time) bool {
	if r.MaxAttempts > 0 && p.Attempts >= r.MaxAttempts {
		return true
	}
	if r.MaxAge > 0 && now.Sub(p.EnqueuedAt) > r.MaxAge {
		return true
	}
	return false
}

// Queue is the durable at-least-once delivery queue for offline and failed
// submissions. If the local store cannot be reached at construction the queue
// marks itself unavailable and every method degrades to a safe no-op
// returning storage.ErrUnavailable; it never panics at the caller.
type Queue struct {
	store     storage.Store
	retention Retention
	available bool
	log       zerolog.Logger
}

func New(ctx context.Context, store storage.Store, retention Retention, log zerolog.Logger) *Queue {
	q := &Queue{
		store:     store,
		retention: retention,
		log:       log,
	}
	if store == nil {
		log.Warn().Msg("no local store, offline queueing disabled")
		return q
	}
	if err := store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("local store unreachable, offline queueing disabled")
		return q
	}
	q.available = true
	return q
}

func (q *Queue) Available() bool {
	return q.available
}

// Enqueue persists a new pending submission under a fresh id. Ids are ulids
// and are never reused.
func (q *Queue) Enqueue(ctx context.Context, payload models.SubmissionPayload, lastErr string) (string, error) {
	if !q.available {
		return "", storage.ErrUnavailable
	}
	p := &models.PendingSubmission{
		ID:         models.NewID("sub"),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
		Attempts:   0,
		LastError:  lastErr,
	}
	if err := q.store.CreatePending(ctx, p); err != nil {
		q.log.Error().Err(err).Msg("failed to enqueue submission")
		return "", err
	}
	q.log.Info().Str("id", p.ID).Str("session_id", payload.SessionID).Msg("submission queued")
	return p.ID, nil
}

// Dequeue removes an entry, on delivery success or manual discard.
func (q *Queue) Dequeue(ctx context.Context, id string) error {
	if !q.available {
		return storage.ErrUnavailable
	}
	return q.store.DeletePending(ctx, id)
}

// Update upserts an entry after a failed replay.
func (q *Queue) Update(ctx context.Context, p *models.PendingSubmission) error {
	if !q.available {
		return storage.ErrUnavailable
	}
	return q.store.UpsertPending(ctx, p)
}

func (q *Queue) GetAll(ctx context.Context) ([]models.PendingSubmission, error) {
	if !q.available {
		return nil, storage.ErrUnavailable
	}
	return q.store.ListPending(ctx)
}

func (q *Queue) Count(ctx context.Context) int {
	if !q.available {
		return 0
	}
	count, err := q.store.CountPending(ctx)
	if err != nil {
		q.log.Error().Err(err).Msg("failed to count queue")
		return 0
	}
	return count
}

func (q *Queue) HasItems(ctx context.Context) bool {
	return q.Count(ctx) > 0
}

type ProcessResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Discarded int      `json:"discarded"`
	Errors    []string `json:"errors,omitempty"`
}

// Process replays every queued entry strictly sequentially, one in-flight
// backend call at a time. Success removes the entry; failure increments its
// attempt count and keeps it queued. Entries past the retention caps are
// discarded without an attempt.
func (q *Queue) Process(ctx context.Context, submitFn func(ctx context.Context, payload models.SubmissionPayload) error) ProcessResult {
	var result ProcessResult
	if !q.available {
		return result
	}

	pending, err := q.store.ListPending(ctx)
	if err != nil {
		q.log.Error().Err(err).Msg("failed to load queue")
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	now := time.Now().UTC()
	for _, p := range pending {
		if q.retention.expired(p, now) {
			if err := q.store.DeletePending(ctx, p.ID); err != nil {
				q.log.Error().Err(err).Str("id", p.ID).Msg("failed to discard expired entry")
				continue
			}
			q.log.Warn().Str("id", p.ID).Int("attempts", p.Attempts).Msg("discarded expired queue entry")
			result.Discarded++
			continue
		}

		result.Processed++
		err := submitFn(ctx, p.Payload)
		if err == nil {
			if err := q.store.DeletePending(ctx, p.ID); err != nil {
				q.log.Error().Err(err).Str("id", p.ID).Msg("replay succeeded but dequeue failed")
				result.Errors = append(result.Errors, fmt.Sprintf("%s: dequeue failed: %v", p.ID, err))
				continue
			}
			result.Succeeded++
			q.log.Info().Str("id", p.ID).Msg("queued submission delivered")
			continue
		}

		attemptAt := time.Now().UTC()
		p.Attempts++
		p.LastAttemptAt = &attemptAt
		p.LastError = err.Error()
		if uerr := q.store.UpsertPending(ctx, &p); uerr != nil {
			q.log.Error().Err(uerr).Str("id", p.ID).Msg("failed to persist replay failure")
		}
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", p.ID, err))
		q.log.Warn().Err(err).Str("id", p.ID).Int("attempts", p.Attempts).Msg("queued submission replay failed")
	}

	return result
}
