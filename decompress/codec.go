// Package decompress expands downloaded chunks in parallel.
package decompress

import (
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec turns a compressed stream into its uncompressed bytes.
type Codec interface {
	Name() string
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Zstd decodes Zstandard frames. It is the default codec.
type Zstd struct {
	// MaxMemory caps decoder memory. Zero keeps the library default.
	MaxMemory uint64
}

func (Zstd) Name() string { return "zstd" }

func (z Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true)}
	if z.MaxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(z.MaxMemory))
	}
	dec, err := zstd.NewReader(r, opts...)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// Gzip decodes gzip members.
type Gzip struct{}

func (Gzip) Name() string { return "gzip" }

func (Gzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr, nil
}

// LZ4 decodes LZ4 frames.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// Identity passes bytes through unchanged, for uncompressed mirrors.
type Identity struct{}

func (Identity) Name() string { return "none" }

func (Identity) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// ForSource picks a codec from the extension of a source URL or path.
// Unknown extensions fall back to zstd.
func ForSource(source string) Codec {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".gz", ".gzip":
		return Gzip{}
	case ".lz4":
		return LZ4{}
	case ".ndjson", ".jsonl", ".json":
		return Identity{}
	default:
		return Zstd{}
	}
}
