// Package adapter defines the notification boundary for finished runs.
//
// Adapters publish run completion events to downstream systems such as a
// mirror indexer waiting for fresh records. Publishing is best effort: a
// failed notification never changes the run outcome.
package adapter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// EventTypeRunCompleted is the only event type published.
const EventTypeRunCompleted = "run_completed"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	EventType       string `json:"event_type"` // always "run_completed"
	Version         string `json:"version"`
	RunID           string `json:"run_id"`
	Archive         string `json:"archive"`
	Repo            string `json:"repo,omitempty"`
	Outcome         string `json:"outcome"` // success, up_to_date, failed_gap, etc.
	Message         string `json:"message,omitempty"`
	StartRecord     int64  `json:"start_record"`
	EndRecord       int64  `json:"end_record"`
	LatestAvailable int64  `json:"latest_available"`
	BytesAppended   int64  `json:"bytes_appended"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// initialInterval is the first retry delay; later delays double.
var initialInterval = 500 * time.Millisecond

// Retry runs op once plus up to retries more times with exponential
// backoff. Wrap an error with backoff.Permanent to stop early.
func Retry(ctx context.Context, retries int, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}
