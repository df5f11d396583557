package metrics

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/models"
)

const (
	DefaultCapacity      = 1000
	DefaultFlushInterval = 60 * time.Second
)

// Sink receives the periodic aggregated document. Delivery is best-effort;
// an unreachable sink is logged and ignored.
type Sink interface {
	Send(ctx context.Context, m models.AggregatedMetrics) error
}

// Aggregator keeps a bounded FIFO buffer of pipeline outcomes and flushes
// aggregates to a sink on a fixed interval. It is explicitly constructed and
// explicitly started; construction has no side effects.
type Aggregator struct {
	capacity int
	sink     Sink
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	events []models.MetricEvent

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewAggregator(capacity int, sink Sink, interval time.Duration, log zerolog.Logger) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Aggregator{
		capacity: capacity,
		sink:     sink,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Flush(ctx)
			}
		}
	}()
}

func (a *Aggregator) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// Record appends an event, evicting the oldest once the buffer is full.
func (a *Aggregator) Record(e models.MetricEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	observe(e)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	if len(a.events) > a.capacity {
		a.events = a.events[1:]
	}
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

// Calculate derives aggregates from the current buffer. An empty buffer
// yields neutral defaults: 100% success, zero everything else.
func (a *Aggregator) Calculate() models.AggregatedMetrics {
	a.mu.Lock()
	events := make([]models.MetricEvent, len(a.events))
	copy(events, a.events)
	a.mu.Unlock()

	m := models.AggregatedMetrics{
		SuccessRate: 100,
		GeneratedAt: time.Now().UTC(),
	}
	if len(events) == 0 {
		return m
	}

	var (
		succeeded   int
		durationSum int64
		retrySum    int
		retryCount  int
		replaySum   int64
		replayCount int
	)
	for _, e := range events {
		if e.Success {
			succeeded++
		}
		durationSum += e.DurationMs
		if e.Retries != nil {
			retrySum += *e.Retries
			retryCount++
			if *e.Retries > m.MaxRetries {
				m.MaxRetries = *e.Retries
			}
		}
		if e.Kind == models.MetricQueueReplay {
			replaySum += e.DurationMs
			replayCount++
		}
	}

	m.TotalEvents = len(events)
	m.SuccessRate = int(math.Round(float64(succeeded) / float64(len(events)) * 100))
	m.FailureRate = 100 - m.SuccessRate
	m.MeanDurationMs = float64(durationSum) / float64(len(events))
	if retryCount > 0 {
		m.MeanRetries = float64(retrySum) / float64(retryCount)
	}
	if replayCount > 0 {
		m.MeanReplayDurationMs = float64(replaySum) / float64(replayCount)
	}
	return m
}

// Flush sends the current aggregates to the sink and clears the buffer
// whatever the send outcome. Metrics are lossy by design.
func (a *Aggregator) Flush(ctx context.Context) {
	m := a.Calculate()

	if a.sink != nil && m.TotalEvents > 0 {
		if err := a.sink.Send(ctx, m); err != nil {
			a.log.Warn().Err(err).Msg("metrics sink unreachable, dropping batch")
		}
	}

	a.mu.Lock()
	a.events = a.events[:0]
	a.mu.Unlock()
}
