// Package manifest fetches and parses the chunk manifest into an ordered
// list of chunk descriptors.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/types"
)

// maxManifestBytes caps the manifest body read into memory.
const maxManifestBytes = 32 << 20

// Options configures a Resolver.
type Options struct {
	// URL is the manifest location. May contain {repo}.
	URL string
	// ChunkTemplate builds monthly and daily chunk URLs from {repo} and {name}.
	ChunkTemplate string
	// Repo is substituted for {repo}.
	Repo string
}

// Resolver retrieves the manifest for a run. It performs a single fetch;
// retry is left to the operator.
type Resolver struct {
	fetcher fetch.Fetcher
	opts    Options
}

// NewResolver creates a Resolver. Empty URL and ChunkTemplate take the
// GitHub release defaults.
func NewResolver(f fetch.Fetcher, opts Options) *Resolver {
	if opts.URL == "" {
		opts.URL = DefaultManifestURL
	}
	if opts.ChunkTemplate == "" {
		opts.ChunkTemplate = DefaultChunkTemplate
	}
	return &Resolver{fetcher: f, opts: opts}
}

// URL returns the manifest URL with placeholders expanded.
func (r *Resolver) URL() string {
	return Expand(r.opts.URL, r.opts.Repo, "")
}

// Resolve fetches and parses the manifest.
func (r *Resolver) Resolve(ctx context.Context) (*types.Manifest, error) {
	if r.opts.Repo == "" && (NeedsRepo(r.opts.URL) || NeedsRepo(r.opts.ChunkTemplate)) {
		return nil, &FetchError{URL: r.opts.URL, Err: errors.New("source repository is not set (NDARCHIVE_REPO)")}
	}

	url := r.URL()
	body, err := r.fetcher.Open(ctx, url)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer iox.DiscardClose(body)

	data, err := io.ReadAll(io.LimitReader(body, maxManifestBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if len(data) > maxManifestBytes {
		return nil, &ParseError{Msg: fmt.Sprintf("body exceeds %d bytes", maxManifestBytes)}
	}

	return Parse(data, r.opts.ChunkTemplate, r.opts.Repo)
}

type yearlyEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type document struct {
	LastDownloaded *int64        `json:"lastDownloaded"`
	Yearly         []yearlyEntry `json:"yearly"`
	Monthly        []string      `json:"monthly"`
	Daily          []string      `json:"daily"`
}

// Parse decodes a manifest body. Yearly chunks keep their explicit URL;
// monthly and daily chunk URLs come from chunkTemplate. Descriptors are
// returned yearly, then monthly, then daily, each in manifest order.
func Parse(data []byte, chunkTemplate, repo string) (*types.Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Msg: "malformed JSON", Err: err}
	}
	if doc.LastDownloaded == nil {
		return nil, &ParseError{Field: "lastDownloaded", Msg: "required field missing"}
	}
	if *doc.LastDownloaded < 0 {
		return nil, &ParseError{Field: "lastDownloaded", Msg: "must not be negative"}
	}

	m := &types.Manifest{
		LatestAvailable: *doc.LastDownloaded,
		Chunks:          make([]types.ChunkDescriptor, 0, len(doc.Yearly)+len(doc.Monthly)+len(doc.Daily)),
	}

	for i, y := range doc.Yearly {
		field := fmt.Sprintf("yearly[%d]", i)
		if y.Name == "" {
			return nil, &ParseError{Field: field, Msg: "missing name"}
		}
		if y.URL == "" {
			return nil, &ParseError{Field: field, Msg: "missing url"}
		}
		d, err := descriptor(field, y.Name, y.URL, types.GranularityYearly)
		if err != nil {
			return nil, err
		}
		m.Chunks = append(m.Chunks, d)
	}

	templated := []struct {
		key   string
		names []string
		g     types.Granularity
	}{
		{"monthly", doc.Monthly, types.GranularityMonthly},
		{"daily", doc.Daily, types.GranularityDaily},
	}
	for _, group := range templated {
		for i, name := range group.names {
			field := fmt.Sprintf("%s[%d]", group.key, i)
			if name == "" {
				return nil, &ParseError{Field: field, Msg: "missing name"}
			}
			d, err := descriptor(field, name, Expand(chunkTemplate, repo, name), group.g)
			if err != nil {
				return nil, err
			}
			m.Chunks = append(m.Chunks, d)
		}
	}

	return m, nil
}

func descriptor(field, name, url string, g types.Granularity) (types.ChunkDescriptor, error) {
	start, end, err := ParseRange(name)
	if err != nil {
		return types.ChunkDescriptor{}, &ParseError{Field: field, Msg: "bad chunk range", Err: err}
	}
	return types.ChunkDescriptor{
		Name:        name,
		SourceURL:   url,
		Start:       start,
		End:         end,
		Granularity: g,
	}, nil
}
