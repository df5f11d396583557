package models

import "time"

// PendingSubmission is a queued, not-yet-delivered submission awaiting replay.
// Created on enqueue, mutated in place after each failed replay, deleted on
// success or manual discard. Its ID is never reused.
type PendingSubmission struct {
	ID            string            `json:"id"`
	Payload       SubmissionPayload `json:"payload"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`
	Attempts      int               `json:"attempts"`
	LastAttemptAt *time.Time        `json:"last_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
}
