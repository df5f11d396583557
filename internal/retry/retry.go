package retry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/netmon"
)

// ErrOffline marks an attempt that was skipped because connectivity was down
// at the attempt boundary. No backend call is issued for such attempts.
var ErrOffline = errors.New("no network connectivity")

// Terminal error markers surfaced by the backend. Errors carrying one of
// these are never retried.
const (
	MarkerValidation = "VALIDATION_ERROR"
	MarkerAuth       = "AUTH_ERROR"
	MarkerDuplicate  = "DUPLICATE_SUBMISSION"
)

type Class int

const (
	ClassTransient Class = iota
	ClassTerminal
	ClassConnectivity
)

// Classify buckets an error by the backend's fixed string markers. Anything
// unrecognized is treated as transient.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	if errors.Is(err, ErrOffline) {
		return ClassConnectivity
	}
	s := err.Error()
	if strings.Contains(s, MarkerValidation) ||
		strings.Contains(s, MarkerAuth) ||
		strings.Contains(s, MarkerDuplicate) {
		return ClassTerminal
	}
	return ClassTransient
}

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

var DefaultPolicy = Policy{
	MaxAttempts:  5,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
}

// Delay returns the backoff before the attempt after index i. Growth is
// deterministic, no jitter, so tests can assert exact wait times.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

type Result struct {
	Success  bool
	Data     any
	Err      error
	Attempts int
}

// Orchestrator drives the attempt loop: connectivity is sampled at each
// attempt boundary, terminal errors abort immediately, transient ones back
// off and continue until MaxAttempts is reached.
type Orchestrator struct {
	policy  Policy
	monitor *netmon.Monitor
	log     zerolog.Logger

	// sleep is replaced in tests to assert delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(policy Policy, monitor *netmon.Monitor, log zerolog.Logger) *Orchestrator {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}
	return &Orchestrator{
		policy:  policy,
		monitor: monitor,
		log:     log,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (o *Orchestrator) SubmitWithRetry(ctx context.Context, attemptFn func(ctx context.Context) (any, error)) Result {
	var lastErr error

	for attempt := 0; attempt < o.policy.MaxAttempts; attempt++ {
		var err error
		if !o.monitor.IsOnline() {
			err = ErrOffline
		} else {
			var data any
			data, err = attemptFn(ctx)
			if err == nil {
				return Result{Success: true, Data: data, Attempts: attempt + 1}
			}
		}

		lastErr = err

		if Classify(err) == ClassTerminal {
			o.log.Warn().Err(err).Int("attempt", attempt+1).Msg("terminal error, aborting retries")
			return Result{Err: err, Attempts: attempt + 1}
		}

		if attempt == o.policy.MaxAttempts-1 {
			break
		}

		delay := o.policy.Delay(attempt)
		o.log.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("attempt failed, backing off")
		if err := o.sleep(ctx, delay); err != nil {
			return Result{Err: err, Attempts: attempt + 1}
		}
	}

	return Result{Err: lastErr, Attempts: o.policy.MaxAttempts}
}
