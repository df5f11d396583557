package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/models"
)

// HTTPSink posts the aggregated document to an external collector.
type HTTPSink struct {
	url    string
	client *http.Client
}

func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSink) Send(ctx context.Context, m models.AggregatedMetrics) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("metrics sink returned %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes the aggregated document to the log, for deployments
// without an external collector.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, m models.AggregatedMetrics) error {
	s.log.Info().
		Int("total_events", m.TotalEvents).
		Int("success_rate", m.SuccessRate).
		Float64("mean_duration_ms", m.MeanDurationMs).
		Float64("mean_retries", m.MeanRetries).
		Int("max_retries", m.MaxRetries).
		Msg("metrics flush")
	return nil
}
