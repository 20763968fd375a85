package cmd

import (
	"context"
	"time"

	"github.com/justapithecus/ndarchive/adapter"
	"github.com/justapithecus/ndarchive/adapter/redis"
	"github.com/justapithecus/ndarchive/adapter/webhook"
	"github.com/justapithecus/ndarchive/cli/config"
	"github.com/justapithecus/ndarchive/log"
	"github.com/justapithecus/ndarchive/reconstruct"
	"github.com/justapithecus/ndarchive/types"
)

// notifyTimeout bounds all notification publishing after a run.
const notifyTimeout = 30 * time.Second

// buildAdapters creates the configured notification adapters.
func buildAdapters(n config.NotifyConfig) ([]adapter.Adapter, error) {
	var out []adapter.Adapter
	if n.Webhook.URL != "" {
		cfg := webhook.Config{
			URL:     n.Webhook.URL,
			Headers: n.Webhook.Headers,
			Timeout: n.Webhook.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if n.Webhook.Retries != nil {
			cfg.Retries = *n.Webhook.Retries
		}
		a, err := webhook.New(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if n.Redis.URL != "" {
		cfg := redis.Config{
			URL:     n.Redis.URL,
			Channel: n.Redis.Channel,
			Timeout: n.Redis.Timeout.Duration,
			Retries: redis.DefaultRetries,
		}
		if n.Redis.Retries != nil {
			cfg.Retries = *n.Redis.Retries
		}
		a, err := redis.New(cfg)
		if err != nil {
			closeAdapters(out)
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func closeAdapters(adapters []adapter.Adapter) {
	for _, a := range adapters {
		_ = a.Close()
	}
}

// runCompletedEvent builds the notification payload for a finished run.
func runCompletedEvent(result *reconstruct.Result, repo string, finished time.Time) *adapter.RunCompletedEvent {
	return &adapter.RunCompletedEvent{
		EventType:       adapter.EventTypeRunCompleted,
		Version:         types.Version,
		RunID:           result.RunMeta.RunID,
		Archive:         result.RunMeta.ArchivePath,
		Repo:            repo,
		Outcome:         string(result.Outcome.Status),
		Message:         result.Outcome.Message,
		StartRecord:     result.StartRecord,
		EndRecord:       result.EndRecord,
		LatestAvailable: result.LatestAvailable,
		BytesAppended:   result.BytesAppended,
		Timestamp:       finished.UTC().Format(time.RFC3339),
		DurationMs:      result.Duration.Milliseconds(),
	}
}

// publishAll publishes event to every adapter. Failures are logged and
// never change the run outcome. Publishing survives cancellation of ctx so
// a canceled run is still reported.
func publishAll(ctx context.Context, adapters []adapter.Adapter, event *adapter.RunCompletedEvent, logger *log.Logger) {
	if len(adapters) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, a := range adapters {
		if err := a.Publish(ctx, event); err != nil {
			logger.Warn("run notification failed", map[string]any{"error": err.Error()})
		}
	}
}
