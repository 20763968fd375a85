// Package fetch retrieves manifest and chunk bytes from remote sources.
//
// Sources are addressed by URL: http(s):// through net/http, s3://bucket/key
// through the AWS SDK, and file:// or bare paths for local mirrors.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Fetcher opens a byte stream for a URL. Implementations do not retry;
// retry policy belongs to the Downloader.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Router dispatches to a Fetcher by URL scheme.
type Router struct {
	HTTP Fetcher
	File Fetcher

	// S3 is built on first use so runs that never touch s3:// skip AWS
	// credential resolution.
	S3Factory func(ctx context.Context) (Fetcher, error)

	s3Once sync.Once
	s3     Fetcher
	s3Err  error
}

// NewRouter returns a Router with HTTP and file support and lazy S3.
func NewRouter(httpFetcher Fetcher, s3cfg S3Config) *Router {
	return &Router{
		HTTP: httpFetcher,
		File: FileFetcher{},
		S3Factory: func(ctx context.Context) (Fetcher, error) {
			return NewS3Fetcher(ctx, s3cfg)
		},
	}
}

// Open implements Fetcher.
func (r *Router) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	switch scheme(rawURL) {
	case "http", "https":
		if r.HTTP == nil {
			return nil, fmt.Errorf("no http fetcher configured for %s", rawURL)
		}
		return r.HTTP.Open(ctx, rawURL)
	case "s3":
		f, err := r.s3Fetcher(ctx)
		if err != nil {
			return nil, err
		}
		return f.Open(ctx, rawURL)
	case "file", "":
		if r.File == nil {
			return nil, fmt.Errorf("no file fetcher configured for %s", rawURL)
		}
		return r.File.Open(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported source scheme in %q", rawURL)
	}
}

func (r *Router) s3Fetcher(ctx context.Context) (Fetcher, error) {
	r.s3Once.Do(func() {
		if r.S3Factory == nil {
			r.s3Err = fmt.Errorf("no s3 fetcher configured")
			return
		}
		r.s3, r.s3Err = r.S3Factory(ctx)
	})
	return r.s3, r.s3Err
}

func scheme(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(rawURL[:i])
}

// FileFetcher opens local files. Accepts file:// URLs and bare paths.
type FileFetcher struct{}

// Open implements Fetcher.
func (FileFetcher) Open(_ context.Context, rawURL string) (io.ReadCloser, error) {
	path := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, wrapTransport(err, rawURL)
		}
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapTransport(err, rawURL)
	}
	return f, nil
}

// Verify implementations satisfy Fetcher.
var (
	_ Fetcher = (*Router)(nil)
	_ Fetcher = FileFetcher{}
)
