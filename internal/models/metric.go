package models

import "time"

type MetricKind string

const (
	MetricSubmission  MetricKind = "submission"
	MetricQueueReplay MetricKind = "queue_replay"
	MetricRetry       MetricKind = "retry"
)

// MetricEvent is one recorded pipeline outcome. Retries is nil for events
// where an attempt count does not apply.
type MetricEvent struct {
	Kind       MetricKind `json:"kind"`
	Success    bool       `json:"success"`
	DurationMs int64      `json:"duration_ms"`
	Retries    *int       `json:"retries,omitempty"`
	Error      string     `json:"error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AggregatedMetrics is derived on demand from the current event buffer,
// never stored.
type AggregatedMetrics struct {
	TotalEvents          int       `json:"total_events"`
	SuccessRate          int       `json:"success_rate"`
	FailureRate          int       `json:"failure_rate"`
	MeanDurationMs       float64   `json:"mean_duration_ms"`
	MeanRetries          float64   `json:"mean_retries"`
	MaxRetries           int       `json:"max_retries"`
	MeanReplayDurationMs float64   `json:"mean_replay_duration_ms"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// ManualExport is the downloadable document offered when both immediate
// submission and queueing fail.
type ManualExport struct {
	Payload    SubmissionPayload `json:"payload"`
	ExportedAt time.Time         `json:"exported_at"`
}
