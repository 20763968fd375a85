package fetch

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/log"
	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/types"
)

// Defaults for DownloadOptions.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
)

// DownloadOptions bounds retrieval of each chunk.
type DownloadOptions struct {
	// Attempts is the total number of tries per chunk (>= 1).
	Attempts int
	// RetryDelay is the constant pause between attempts.
	RetryDelay time.Duration
	// Timeout caps a single attempt. Zero disables the cap.
	Timeout time.Duration
}

func (o DownloadOptions) withDefaults() DownloadOptions {
	if o.Attempts < 1 {
		o.Attempts = DefaultAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Downloader retrieves chunks sequentially into their CompressedPath.
type Downloader struct {
	fetcher   Fetcher
	opts      DownloadOptions
	logger    *log.Logger
	collector *metrics.Collector
}

// NewDownloader creates a Downloader. logger and collector may be nil.
func NewDownloader(f Fetcher, opts DownloadOptions, logger *log.Logger, collector *metrics.Collector) *Downloader {
	if logger == nil {
		logger = log.Nop()
	}
	return &Downloader{
		fetcher:   f,
		opts:      opts.withDefaults(),
		logger:    logger.With("download"),
		collector: collector,
	}
}

// Download retrieves every item in order, one at a time. Items are updated
// in place with size and digest. The first chunk to exhaust its attempts
// stops the run with a *DownloadError.
func (d *Downloader) Download(ctx context.Context, items []types.WorkItem) error {
	for i := range items {
		if err := d.downloadOne(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) downloadOne(ctx context.Context, item *types.WorkItem) error {
	desc := item.Descriptor
	attempts := 0

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		d.collector.IncDownloadAttempt(attempts > 1)

		n, digest, err := d.attempt(ctx, desc.SourceURL, item.CompressedPath)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		item.CompressedBytes = n
		item.Digest = digest
		return nil
	}

	notify := func(err error, wait time.Duration) {
		d.logger.Warn("chunk download failed, retrying", map[string]any{
			"chunk":   desc.Name,
			"attempt": attempts,
			"of":      d.opts.Attempts,
			"kind":    Classify(err).Error(),
			"error":   err.Error(),
			"wait":    wait.String(),
		})
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.opts.RetryDelay), uint64(d.opts.Attempts-1)),
		ctx,
	)

	started := time.Now()
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		_ = iox.RemoveIfExists(item.CompressedPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &DownloadError{Chunk: desc.Name, URL: desc.SourceURL, Attempts: attempts, Err: err}
	}

	d.collector.AddChunkDownloaded(item.CompressedBytes)
	d.logger.Info("chunk downloaded", map[string]any{
		"chunk":    desc.Name,
		"bytes":    item.CompressedBytes,
		"size":     humanize.IBytes(uint64(item.CompressedBytes)),
		"blake3":   item.Digest,
		"attempts": attempts,
		"elapsed":  time.Since(started).String(),
	})
	return nil
}

// attempt streams one retrieval into dst, replacing any partial file from
// an earlier attempt.
func (d *Downloader) attempt(ctx context.Context, url, dst string) (int64, string, error) {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	body, err := d.fetcher.Open(ctx, url)
	if err != nil {
		return 0, "", err
	}
	defer iox.DiscardClose(body)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", dst, err)
	}

	h := blake3.New()
	n, copyErr := io.Copy(io.MultiWriter(f, h), &iox.ContextReader{R: body, Done: ctx.Err})
	closeErr := iox.SyncClose(f)
	if copyErr != nil {
		return n, "", wrapTransport(copyErr, url)
	}
	if closeErr != nil {
		return n, "", fmt.Errorf("write %s: %w", dst, closeErr)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
