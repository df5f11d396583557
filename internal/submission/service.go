package submission

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/backend"
	"github.com/tvermeulen/disporelay/internal/draft"
	"github.com/tvermeulen/disporelay/internal/metrics"
	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/netmon"
	"github.com/tvermeulen/disporelay/internal/queue"
	"github.com/tvermeulen/disporelay/internal/retry"
	"github.com/tvermeulen/disporelay/internal/validate"
)

// Backend is the remote collaborator the pipeline delivers to.
type Backend interface {
	UpsertSubmission(ctx context.Context, payload models.SubmissionPayload) (*backend.Record, error)
	AppendAudit(ctx context.Context, entry backend.AuditEntry) error
}

// Result is the single return shape of Submit. No error escapes the service
// boundary; every failure mode is expressed here.
type Result struct {
	Success     bool            `json:"success"`
	Queued      bool            `json:"queued,omitempty"`
	QueueID     string          `json:"queue_id,omitempty"`
	Record      *backend.Record `json:"record,omitempty"`
	Attempts    int             `json:"attempts,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	NeedsExport bool            `json:"needs_export,omitempty"`
}

// Service wires validation, connectivity, retry, queueing, drafts and
// metrics into the submit pipeline.
type Service struct {
	backend Backend
	queue   *queue.Queue
	drafts  *draft.Cache
	monitor *netmon.Monitor
	retrier *retry.Orchestrator
	agg     *metrics.Aggregator
	log     zerolog.Logger
}

func NewService(
	be Backend,
	q *queue.Queue,
	drafts *draft.Cache,
	monitor *netmon.Monitor,
	retrier *retry.Orchestrator,
	agg *metrics.Aggregator,
	log zerolog.Logger,
) *Service {
	return &Service{
		backend: be,
		queue:   q,
		drafts:  drafts,
		monitor: monitor,
		retrier: retrier,
		agg:     agg,
		log:     log,
	}
}

// Submit runs one payload through the pipeline: validate, route by
// connectivity, attempt with retries, fall back to the durable queue, and as
// a last resort advise a manual export.
func (s *Service) Submit(ctx context.Context, payload models.SubmissionPayload) Result {
	if v := validate.Submission(payload); !v.Valid {
		return Result{Errors: v.Errors}
	}

	if !s.monitor.IsOnline() {
		s.log.Info().Str("session_id", payload.SessionID).Msg("offline, queueing submission")
		return s.enqueue(ctx, payload, "")
	}

	start := time.Now()
	res := s.retrier.SubmitWithRetry(ctx, func(ctx context.Context) (any, error) {
		return s.backend.UpsertSubmission(ctx, payload)
	})

	event := models.MetricEvent{
		Kind:       models.MetricSubmission,
		Success:    res.Success,
		DurationMs: time.Since(start).Milliseconds(),
		Retries:    &res.Attempts,
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	s.agg.Record(event)

	if res.Success {
		rec, _ := res.Data.(*backend.Record)
		s.afterDelivery(ctx, payload)
		return Result{Success: true, Record: rec, Attempts: res.Attempts}
	}

	if retry.Classify(res.Err) == retry.ClassTerminal {
		return Result{Errors: []string{res.Err.Error()}, Attempts: res.Attempts}
	}

	s.log.Warn().Err(res.Err).Int("attempts", res.Attempts).Msg("attempts exhausted, queueing submission")
	r := s.enqueue(ctx, payload, res.Err.Error())
	r.Attempts = res.Attempts
	return r
}

func (s *Service) enqueue(ctx context.Context, payload models.SubmissionPayload, lastErr string) Result {
	id, err := s.queue.Enqueue(ctx, payload, lastErr)
	if err != nil {
		s.log.Error().Err(err).Msg("queueing failed, advising manual export")
		return Result{
			NeedsExport: true,
			Errors:      []string{"submission could not be delivered or queued, download a local copy"},
		}
	}
	metrics.QueueDepth.Set(float64(s.queue.Count(ctx)))
	return Result{Queued: true, QueueID: id}
}

// ProcessQueue replays every queued submission sequentially through the
// idempotent backend upsert, recording one queue_replay event per entry.
func (s *Service) ProcessQueue(ctx context.Context) queue.ProcessResult {
	result := s.queue.Process(ctx, func(ctx context.Context, payload models.SubmissionPayload) error {
		start := time.Now()
		_, err := s.backend.UpsertSubmission(ctx, payload)

		event := models.MetricEvent{
			Kind:       models.MetricQueueReplay,
			Success:    err == nil,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			event.Error = err.Error()
		}
		s.agg.Record(event)

		if err == nil {
			s.afterDelivery(ctx, payload)
		}
		return err
	})

	metrics.QueueDepth.Set(float64(s.queue.Count(ctx)))
	return result
}

// afterDelivery runs the post-success bookkeeping: audit append and draft
// cleanup. Both are best-effort.
func (s *Service) afterDelivery(ctx context.Context, payload models.SubmissionPayload) {
	entry := backend.AuditEntry{
		Action:    "availability_submitted",
		SessionID: payload.SessionID,
		Email:     payload.NormalizedEmail(),
		Timestamp: time.Now().UTC(),
	}
	if err := s.backend.AppendAudit(ctx, entry); err != nil {
		s.log.Warn().Err(err).Msg("audit append failed")
	}

	if err := s.drafts.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear draft after delivery")
	}
}

// Export builds the downloadable JSON document offered when both immediate
// submission and queueing fail.
func (s *Service) Export(payload models.SubmissionPayload) ([]byte, error) {
	doc := models.ManualExport{
		Payload:    payload,
		ExportedAt: time.Now().UTC(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// SaveDraft schedules a debounced autosave of the in-progress form.
func (s *Service) SaveDraft(d models.FormDraft) error {
	return s.drafts.Save(d)
}

// LoadDraft restores the in-progress form, if a fresh draft exists.
func (s *Service) LoadDraft(ctx context.Context) *models.FormDraft {
	return s.drafts.Load(ctx)
}

// ClearDraft discards the draft slot, for explicit form resets.
func (s *Service) ClearDraft(ctx context.Context) error {
	return s.drafts.Clear(ctx)
}
