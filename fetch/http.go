package fetch

import (
	"context"
	"io"
	"net/http"

	"github.com/justapithecus/ndarchive/types"
)

// HTTPFetcher retrieves sources with plain GET requests.
type HTTPFetcher struct {
	client  *http.Client
	headers http.Header
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.headers.Set(key, value)
	}
}

// NewHTTPFetcher creates an HTTPFetcher. Requests carry an ndarchive
// User-Agent unless overridden with WithHeader.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  http.DefaultClient,
		headers: make(http.Header),
	}
	f.headers.Set("User-Agent", "ndarchive/"+types.Version)
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	return f
}

// Open implements Fetcher. The caller must close the returned body.
func (f *HTTPFetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, wrapTransport(err, rawURL)
	}
	for key, values := range f.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, wrapTransport(err, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, wrapTransport(&StatusError{Code: resp.StatusCode, Status: resp.Status}, rawURL)
	}
	return resp.Body, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
