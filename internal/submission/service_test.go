package submission

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/backend"
	"github.com/tvermeulen/disporelay/internal/draft"
	"github.com/tvermeulen/disporelay/internal/metrics"
	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/netmon"
	"github.com/tvermeulen/disporelay/internal/queue"
	"github.com/tvermeulen/disporelay/internal/retry"
	"github.com/tvermeulen/disporelay/internal/storage"
)

type fakeBackend struct {
	upsertFn    func(payload models.SubmissionPayload) (*backend.Record, error)
	upsertCalls int
	auditCalls  int
}

func (f *fakeBackend) UpsertSubmission(ctx context.Context, payload models.SubmissionPayload) (*backend.Record, error) {
	f.upsertCalls++
	if f.upsertFn != nil {
		return f.upsertFn(payload)
	}
	return &backend.Record{ID: "rec_1", SessionID: payload.SessionID, Email: payload.NormalizedEmail()}, nil
}

func (f *fakeBackend) AppendAudit(ctx context.Context, entry backend.AuditEntry) error {
	f.auditCalls++
	return nil
}

type fixture struct {
	svc     *Service
	be      *fakeBackend
	queue   *queue.Queue
	drafts  *draft.Cache
	monitor *netmon.Monitor
	agg     *metrics.Aggregator
	store   *storage.SQLiteStore
}

func newFixture(t *testing.T, online bool, withStore bool) *fixture {
	t.Helper()
	ctx := context.Background()

	var store storage.Store
	var sqlStore *storage.SQLiteStore
	if withStore {
		s, err := storage.NewSQLite(filepath.Join(t.TempDir(), "svc.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		store = s
		sqlStore = s
	}

	be := &fakeBackend{}
	monitor := netmon.New(online)
	retrier := retry.NewOrchestrator(retry.Policy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}, monitor, zerolog.Nop())
	q := queue.New(ctx, store, queue.Retention{}, zerolog.Nop())
	drafts := draft.New(ctx, store, 10*time.Millisecond, zerolog.Nop())
	agg := metrics.NewAggregator(100, nil, metrics.DefaultFlushInterval, zerolog.Nop())

	return &fixture{
		svc:     NewService(be, q, drafts, monitor, retrier, agg, zerolog.Nop()),
		be:      be,
		queue:   q,
		drafts:  drafts,
		monitor: monitor,
		agg:     agg,
		store:   sqlStore,
	}
}

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

func seedDraft(t *testing.T, f *fixture, session string) {
	t.Helper()
	d := &models.FormDraft{
		Email:     "a@x.be",
		SessionID: session,
		SavedAt:   time.Now().UTC(),
	}
	if err := f.store.PutDraft(context.Background(), d); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
}

func TestSubmitRejectsInvalidPayloadWithoutSideEffects(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()

	p := validPayload()
	p.Prenom = "A"

	r := f.svc.Submit(ctx, p)
	if r.Success || r.Queued {
		t.Fatalf("result = %+v", r)
	}
	if len(r.Errors) == 0 {
		t.Error("expected validation errors")
	}
	if f.be.upsertCalls != 0 {
		t.Errorf("backend called %d times for invalid payload", f.be.upsertCalls)
	}
	if f.queue.Count(ctx) != 0 {
		t.Errorf("queue count = %d, want 0", f.queue.Count(ctx))
	}
}

func TestSubmitOnlineSuccessClearsDraft(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()
	seedDraft(t, f, "S1")

	r := f.svc.Submit(ctx, validPayload())
	if !r.Success {
		t.Fatalf("result = %+v", r)
	}
	if r.Record == nil || r.Record.ID != "rec_1" {
		t.Errorf("record = %+v", r.Record)
	}
	if r.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", r.Attempts)
	}
	if f.be.auditCalls != 1 {
		t.Errorf("audit calls = %d, want 1", f.be.auditCalls)
	}
	if d := f.drafts.Load(ctx); d != nil {
		t.Errorf("draft not cleared: %+v", d)
	}
}

func TestSubmitOfflineQueuesExactlyOne(t *testing.T) {
	f := newFixture(t, false, true)
	ctx := context.Background()

	before := f.queue.Count(ctx)
	r := f.svc.Submit(ctx, validPayload())

	if r.Success || !r.Queued || r.QueueID == "" {
		t.Fatalf("result = %+v", r)
	}
	if f.be.upsertCalls != 0 {
		t.Errorf("backend called %d times while offline", f.be.upsertCalls)
	}
	if got := f.queue.Count(ctx); got != before+1 {
		t.Errorf("queue count = %d, want %d", got, before+1)
	}
}

func TestSubmitExhaustionFallsBackToQueue(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()

	f.be.upsertFn = func(p models.SubmissionPayload) (*backend.Record, error) {
		return nil, errors.New("backend returned 503: overloaded")
	}

	r := f.svc.Submit(ctx, validPayload())
	if r.Success || !r.Queued {
		t.Fatalf("result = %+v", r)
	}
	if r.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", r.Attempts)
	}
	if f.be.upsertCalls != 5 {
		t.Errorf("backend called %d times, want 5", f.be.upsertCalls)
	}

	pending, _ := f.queue.GetAll(ctx)
	if len(pending) != 1 {
		t.Fatalf("queue entries = %d, want 1", len(pending))
	}
	if pending[0].LastError == "" {
		t.Error("queued entry missing last error")
	}

	m := f.agg.Calculate()
	if m.TotalEvents != 1 || m.FailureRate != 100 || m.MaxRetries != 5 {
		t.Errorf("metrics = %+v, want one failed submission event with 5 retries", m)
	}
}

func TestSubmitTerminalErrorIsNotQueued(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()

	f.be.upsertFn = func(p models.SubmissionPayload) (*backend.Record, error) {
		return nil, errors.New("DUPLICATE_SUBMISSION: already recorded")
	}

	r := f.svc.Submit(ctx, validPayload())
	if r.Success || r.Queued {
		t.Fatalf("result = %+v", r)
	}
	if r.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", r.Attempts)
	}
	if f.be.upsertCalls != 1 {
		t.Errorf("backend called %d times, want 1", f.be.upsertCalls)
	}
	if f.queue.Count(ctx) != 0 {
		t.Errorf("terminal failure must not be queued, count = %d", f.queue.Count(ctx))
	}
}

func TestSubmitOfflineWithoutStoreAdvisesExport(t *testing.T) {
	f := newFixture(t, false, false)

	r := f.svc.Submit(context.Background(), validPayload())
	if r.Success || r.Queued {
		t.Fatalf("result = %+v", r)
	}
	if !r.NeedsExport {
		t.Error("expected manual export advice")
	}
}

func TestProcessQueueReplaysSequentially(t *testing.T) {
	f := newFixture(t, false, true)
	ctx := context.Background()

	f.svc.Submit(ctx, validPayload())
	p2 := validPayload()
	p2.SessionID = "S2"
	p2.Email = "b@x.be"
	f.svc.Submit(ctx, p2)

	f.monitor.Set(true)
	f.be.upsertFn = func(p models.SubmissionPayload) (*backend.Record, error) {
		if p.SessionID == "S2" {
			return nil, errors.New("backend returned 500: busy")
		}
		return &backend.Record{ID: "rec_1"}, nil
	}

	result := f.svc.ProcessQueue(ctx)
	if result.Processed != 2 || result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if f.queue.Count(ctx) != 1 {
		t.Errorf("queue count = %d, want 1", f.queue.Count(ctx))
	}

	m := f.agg.Calculate()
	if m.TotalEvents != 2 {
		t.Errorf("expected 2 queue_replay events, got %d", m.TotalEvents)
	}
	if m.MeanReplayDurationMs < 0 {
		t.Errorf("mean replay duration = %v", m.MeanReplayDurationMs)
	}
}

func TestProcessQueueSuccessClearsDraft(t *testing.T) {
	f := newFixture(t, false, true)
	ctx := context.Background()

	f.svc.Submit(ctx, validPayload())
	seedDraft(t, f, "S1")

	f.monitor.Set(true)
	result := f.svc.ProcessQueue(ctx)
	if result.Succeeded != 1 {
		t.Fatalf("result = %+v", result)
	}
	if d := f.drafts.Load(ctx); d != nil {
		t.Errorf("draft not cleared after replay: %+v", d)
	}
	if f.be.auditCalls != 1 {
		t.Errorf("audit calls = %d, want 1", f.be.auditCalls)
	}
}

func TestExportDocument(t *testing.T) {
	f := newFixture(t, true, true)

	doc, err := f.svc.Export(validPayload())
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var export models.ManualExport
	if err := json.Unmarshal(doc, &export); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if export.Payload.SessionID != "S1" {
		t.Errorf("payload = %+v", export.Payload)
	}
	if export.ExportedAt.IsZero() {
		t.Error("exported_at not stamped")
	}
}
