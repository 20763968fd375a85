package decompress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/types"
)

func records(start, end int) []byte {
	var b bytes.Buffer
	for n := start; n <= end; n++ {
		fmt.Fprintf(&b, "{\"num\":\"%d\",\"payload\":\"record %d\"}\n", n, n)
	}
	return b.Bytes()
}

func compressZstd(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func compressGzip(t *testing.T, data []byte) []byte {
	t.Helper()
	var b bytes.Buffer
	w := gzip.NewWriter(&b)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return b.Bytes()
}

func compressLZ4(t *testing.T, data []byte) []byte {
	t.Helper()
	var b bytes.Buffer
	w := lz4.NewWriter(&b)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return b.Bytes()
}

func stage(t *testing.T, dir, name, source string, compressed []byte) types.WorkItem {
	t.Helper()
	item := types.WorkItem{
		Descriptor:       types.ChunkDescriptor{Name: name, SourceURL: source},
		CompressedPath:   filepath.Join(dir, name+".compressed"),
		UncompressedPath: filepath.Join(dir, name+".ndjson"),
	}
	require.NoError(t, os.WriteFile(item.CompressedPath, compressed, 0o600))
	return item
}

func TestForSource(t *testing.T) {
	tests := map[string]string{
		"https://github.com/a/b/releases/download/x_1_2/x_1_2.ndjson.zst": "zstd",
		"https://example.com/x_1_2.ndjson.zst?token=abc":                  "zstd",
		"s3://bucket/x_1_2.ndjson.gz":                                     "gzip",
		"/srv/mirror/x_1_2.ndjson.lz4":                                    "lz4",
		"file:///srv/mirror/x_1_2.ndjson":                                 "none",
		"https://example.com/x_1_2":                                       "zstd",
	}
	for source, want := range tests {
		assert.Equal(t, want, ForSource(source).Name(), source)
	}
}

func TestDecompressAll_Codecs(t *testing.T) {
	dir := t.TempDir()
	a, b, c, d := records(1, 100), records(101, 200), records(201, 300), records(301, 310)

	items := []types.WorkItem{
		stage(t, dir, "a_1_100", "https://x/a_1_100.ndjson.zst", compressZstd(t, a)),
		stage(t, dir, "b_101_200", "https://x/b_101_200.ndjson.gz", compressGzip(t, b)),
		stage(t, dir, "c_201_300", "https://x/c_201_300.ndjson.lz4", compressLZ4(t, c)),
		stage(t, dir, "d_301_310", "https://x/d_301_310.ndjson", d),
	}

	collector := metrics.NewCollector("a", "", "fs", "")
	pool := NewPool(nil, collector, WithWorkers(2))
	require.NoError(t, pool.DecompressAll(context.Background(), items))

	for i, want := range [][]byte{a, b, c, d} {
		got, err := os.ReadFile(items[i].UncompressedPath)
		require.NoError(t, err)
		assert.Equal(t, want, got, items[i].Descriptor.Name)
		assert.Equal(t, int64(len(want)), items[i].UncompressedBytes)

		_, err = os.Stat(items[i].CompressedPath)
		assert.True(t, os.IsNotExist(err), "compressed file should be removed after success")
	}

	assert.Equal(t, int64(4), collector.Snapshot().ChunksDecompressed)
}

func TestDecompressAll_FailFast(t *testing.T) {
	dir := t.TempDir()
	items := []types.WorkItem{
		stage(t, dir, "good_1_100", "x.zst", compressZstd(t, records(1, 100))),
		stage(t, dir, "bad_101_200", "x.zst", []byte("this is not zstd")),
	}

	collector := metrics.NewCollector("a", "", "fs", "")
	err := NewPool(nil, collector, WithWorkers(1)).DecompressAll(context.Background(), items)

	var de *DecompressionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad_101_200", de.Chunk)
	assert.Equal(t, int64(1), collector.Snapshot().DecompressFailures)

	for _, it := range items {
		_, statErr := os.Stat(it.UncompressedPath)
		assert.True(t, os.IsNotExist(statErr), "outputs are discarded after a failure: %s", it.UncompressedPath)
	}
}

func TestDecompressAll_MissingInput(t *testing.T) {
	dir := t.TempDir()
	item := types.WorkItem{
		Descriptor:       types.ChunkDescriptor{Name: "gone_1_2", SourceURL: "x.zst"},
		CompressedPath:   filepath.Join(dir, "gone"),
		UncompressedPath: filepath.Join(dir, "gone.ndjson"),
	}
	err := NewPool(nil, nil).DecompressAll(context.Background(), []types.WorkItem{item})

	var de *DecompressionError
	require.ErrorAs(t, err, &de)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDecompressAll_Canceled(t *testing.T) {
	dir := t.TempDir()
	items := []types.WorkItem{stage(t, dir, "a_1_100", "x.zst", compressZstd(t, records(1, 100)))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPool(nil, nil).DecompressAll(ctx, items)
	require.ErrorIs(t, err, context.Canceled)

	var de *DecompressionError
	assert.False(t, errors.As(err, &de))
}

func TestNewPool_DefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, NewPool(nil, nil).Workers(), 1)
	assert.Equal(t, 3, NewPool(nil, nil, WithWorkers(3)).Workers())
}
