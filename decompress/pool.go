package decompress

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/log"
	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/types"
)

// DecompressionError reports a chunk that could not be decompressed.
type DecompressionError struct {
	Chunk string
	Err   error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("decompress chunk %s: %v", e.Chunk, e.Err)
}

func (e *DecompressionError) Unwrap() error {
	return e.Err
}

// Pool decompresses work items with bounded parallelism.
type Pool struct {
	workers   int
	codecFor  func(source string) Codec
	logger    *log.Logger
	collector *metrics.Collector
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers bounds concurrent decompressions. Values < 1 mean NumCPU.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		p.workers = n
	}
}

// WithCodecSelector overrides extension-based codec selection.
func WithCodecSelector(fn func(source string) Codec) PoolOption {
	return func(p *Pool) {
		p.codecFor = fn
	}
}

// NewPool creates a Pool. logger and collector may be nil.
func NewPool(logger *log.Logger, collector *metrics.Collector, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = log.Nop()
	}
	p := &Pool{
		codecFor:  ForSource,
		logger:    logger.With("decompress"),
		collector: collector,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	return p
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// DecompressAll expands every item's CompressedPath into its
// UncompressedPath. The first failure cancels the remaining work and is
// returned as a *DecompressionError. Each compressed file is removed as soon
// as its item succeeds. Items are updated in place with their sizes.
func (p *Pool) DecompressAll(ctx context.Context, items []types.WorkItem) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range items {
		item := &items[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return p.decompressOne(gctx, item)
		})
	}

	if err := g.Wait(); err != nil {
		for i := range items {
			_ = iox.RemoveIfExists(items[i].UncompressedPath)
		}
		return err
	}
	return nil
}

func (p *Pool) decompressOne(ctx context.Context, item *types.WorkItem) error {
	name := item.Descriptor.Name
	codec := p.codecFor(item.Descriptor.SourceURL)
	started := time.Now()

	n, err := p.expand(ctx, codec, item.CompressedPath, item.UncompressedPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.collector.IncDecompressFailure()
		return &DecompressionError{Chunk: name, Err: err}
	}

	item.UncompressedBytes = n
	if err := iox.RemoveIfExists(item.CompressedPath); err != nil {
		p.logger.Warn("failed to remove compressed chunk", map[string]any{
			"chunk": name,
			"error": err.Error(),
		})
	}

	p.collector.AddChunkDecompressed(n)
	p.logger.Info("chunk decompressed", map[string]any{
		"chunk":   name,
		"codec":   codec.Name(),
		"bytes":   n,
		"size":    humanize.IBytes(uint64(n)),
		"elapsed": time.Since(started).String(),
	})
	return nil
}

func (p *Pool) expand(ctx context.Context, codec Codec, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(in)

	dec, err := codec.NewReader(in)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", codec.Name(), err)
	}
	defer iox.DiscardClose(dec)

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(out, &iox.ContextReader{R: dec, Done: ctx.Err})
	closeErr := iox.SyncClose(out)
	if copyErr != nil {
		return n, fmt.Errorf("%s: %w", codec.Name(), copyErr)
	}
	return n, closeErr
}
