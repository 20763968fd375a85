package reconstruct

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/ledger"
	"github.com/justapithecus/ndarchive/locate"
	"github.com/justapithecus/ndarchive/log"
	"github.com/justapithecus/ndarchive/manifest"
	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/scratch"
	"github.com/justapithecus/ndarchive/types"
)

// recordLine renders record n. Payload length varies so byte offsets are
// irregular.
func recordLine(n int64) string {
	return fmt.Sprintf(`{"num":%d,"title":"entry %d","body":"%s"}`+"\n", n, n, strings.Repeat("x", int(n%23)))
}

func records(start, end int64) string {
	var b strings.Builder
	for n := start; n <= end; n++ {
		b.WriteString(recordLine(n))
	}
	return b.String()
}

func digest(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type countingFetcher struct {
	inner fetch.Fetcher
	mu    sync.Mutex
	opens map[string]int
}

func (c *countingFetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens[url]++
	c.mu.Unlock()
	return c.inner.Open(ctx, url)
}

func (c *countingFetcher) count(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[url]
}

func (c *countingFetcher) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.opens {
		n += v
	}
	return n
}

type chunkDef struct {
	name       string
	start, end int64
	yearly     bool
	// body overrides the compressed file contents when set.
	body []byte
	// missing leaves the chunk unpublished.
	missing bool
}

type fixture struct {
	t         *testing.T
	dir       string
	archive   string
	manifest  string
	fetcher   *countingFetcher
	ledger    *ledger.Client
	collector *metrics.Collector
	// configure adjusts the orchestrator config before each run.
	configure func(*Config)
}

func chunkPath(dir, name string) string {
	return filepath.Join(dir, "mirror", name+".ndjson.zst")
}

func newFixture(t *testing.T, latest int64, chunks ...chunkDef) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "mirror"), 0o755); err != nil {
		t.Fatal(err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	doc := map[string]any{"lastDownloaded": latest}
	var yearly []map[string]string
	var monthly []string
	for _, c := range chunks {
		p := chunkPath(dir, c.name)
		if c.yearly {
			yearly = append(yearly, map[string]string{"name": c.name, "url": p})
		} else {
			monthly = append(monthly, c.name)
		}
		if c.missing {
			continue
		}
		body := c.body
		if body == nil {
			body = enc.EncodeAll([]byte(records(c.start, c.end)), nil)
		}
		if err := os.WriteFile(p, body, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	doc["yearly"] = yearly
	doc["monthly"] = monthly
	doc["daily"] = []string{}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	manifestPath := filepath.Join(dir, "mirror", "manifest.json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	led, err := ledger.NewClientWithFactory(lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{
		t:        t,
		dir:      dir,
		archive:  filepath.Join(dir, "archive.ndjson"),
		manifest: manifestPath,
		fetcher:  &countingFetcher{inner: fetch.FileFetcher{}, opens: map[string]int{}},
		ledger:   led,
	}
}

func (f *fixture) writeArchive(content string) {
	f.t.Helper()
	if err := os.WriteFile(f.archive, []byte(content), 0o644); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) readArchive() string {
	f.t.Helper()
	data, err := os.ReadFile(f.archive)
	if err != nil {
		f.t.Fatal(err)
	}
	return string(data)
}

func (f *fixture) execute(ctx context.Context, runID string, repair bool) *Result {
	f.t.Helper()
	f.collector = metrics.NewCollector(f.archive, "", "memory", runID)
	cfg := &Config{
		RunMeta: &types.RunMeta{RunID: runID, ArchivePath: f.archive, Repair: repair},
		Resolver: manifest.NewResolver(f.fetcher, manifest.Options{
			URL:           f.manifest,
			ChunkTemplate: filepath.Join(f.dir, "mirror", "{name}.ndjson.zst"),
		}),
		Fetcher:       f.fetcher,
		Download:      fetch.DownloadOptions{Attempts: 2, RetryDelay: time.Millisecond},
		Workers:       2,
		VerifySamples: DefaultVerifySamples,
		Logger:        log.Nop(),
		Collector:     f.collector,
		Ledger:        f.ledger,
	}
	if f.configure != nil {
		f.configure(cfg)
	}
	o, err := NewOrchestrator(cfg)
	if err != nil {
		f.t.Fatalf("NewOrchestrator: %v", err)
	}
	result, err := o.Execute(ctx)
	if err != nil {
		f.t.Fatalf("Execute: %v", err)
	}
	return result
}

func (f *fixture) assertNoScratch() {
	f.t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dir, "."+filepath.Base(f.archive)+".scratch*"))
	if err != nil {
		f.t.Fatal(err)
	}
	if len(matches) != 0 {
		f.t.Errorf("scratch leftovers: %v", matches)
	}
}

func standardChunks() []chunkDef {
	return []chunkDef{
		{name: "y_1_100", start: 1, end: 100, yearly: true},
		{name: "m_101_200", start: 101, end: 200},
		{name: "m_201_300", start: 201, end: 300},
	}
}

func TestExecute_ResumeMidChunk(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(records(1, 250))

	result := f.execute(context.Background(), "run-1", false)

	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if result.StartRecord != 250 || result.EndRecord != 300 {
		t.Errorf("records %d -> %d, want 250 -> 300", result.StartRecord, result.EndRecord)
	}
	if got, want := f.readArchive(), records(1, 300); got != want {
		t.Errorf("archive content mismatch: got %d bytes, want %d", len(got), len(want))
	}
	if len(result.Chunks) != 1 || !result.Chunks[0].Trimmed || result.Chunks[0].Name != "m_201_300" {
		t.Errorf("chunks = %+v", result.Chunks)
	}
	if result.Chunks[0].UncompressedBytes != int64(len(records(251, 300))) {
		t.Errorf("trimmed size = %d, want %d", result.Chunks[0].UncompressedBytes, len(records(251, 300)))
	}

	// Only the manifest and the one needed chunk were fetched.
	if n := f.fetcher.count(chunkPath(f.dir, "m_201_300")); n != 1 {
		t.Errorf("m_201_300 fetched %d times", n)
	}
	if n := f.fetcher.total(); n != 2 {
		t.Errorf("total fetches = %d, want 2", n)
	}
	f.assertNoScratch()

	s := f.collector.Snapshot()
	if s.ChunksTrimmed != 1 || s.RecordsAppended != 50 || s.RunsCompleted != 1 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestExecute_Idempotent(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(records(1, 250))

	if r := f.execute(context.Background(), "run-1", false); r.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("first run: %s: %s", r.Outcome.Status, r.Outcome.Message)
	}
	before := digest(t, f.archive)
	fetchesBefore := f.fetcher.total()

	r := f.execute(context.Background(), "run-2", false)
	if r.Outcome.Status != types.OutcomeUpToDate {
		t.Fatalf("second run: %s: %s", r.Outcome.Status, r.Outcome.Message)
	}
	if after := digest(t, f.archive); after != before {
		t.Error("archive changed on an up-to-date run")
	}
	if extra := f.fetcher.total() - fetchesBefore; extra != 1 {
		t.Errorf("up-to-date run made %d fetches, want 1 (manifest only)", extra)
	}
	f.assertNoScratch()

	history, err := f.ledger.History(context.Background(), f.archive, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Status != "up_to_date" || history[1].Status != "success" {
		t.Errorf("ledger history = %+v", history)
	}
	if history[1].RecordsAppended != 50 || history[1].ChunksTrimmed != 1 {
		t.Errorf("success record = %+v", history[1])
	}
}

func TestExecute_EmptyArchive(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if got := f.readArchive(); got != records(1, 300) {
		t.Errorf("archive content mismatch")
	}
	if len(result.Chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(result.Chunks))
	}
	for i, want := range []string{"y_1_100", "m_101_200", "m_201_300"} {
		if result.Chunks[i].Name != want || result.Chunks[i].Trimmed {
			t.Errorf("chunk %d = %+v", i, result.Chunks[i])
		}
		if result.Chunks[i].Digest == "" {
			t.Errorf("chunk %d has no digest", i)
		}
	}
}

func TestExecute_ResumeOnBoundary(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(records(1, 200))

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].Trimmed {
		t.Errorf("chunks = %+v, want one untrimmed", result.Chunks)
	}
	if got := f.readArchive(); got != records(1, 300) {
		t.Error("archive content mismatch")
	}
}

func TestExecute_UnterminatedTail(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(strings.TrimSuffix(records(1, 250), "\n"))

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if got := f.readArchive(); got != records(1, 300) {
		t.Error("separator newline missing or duplicated")
	}
}

func TestExecute_GapFailsBeforeDownload(t *testing.T) {
	f := newFixture(t, 300,
		chunkDef{name: "y_1_100", start: 1, end: 100, yearly: true},
		chunkDef{name: "m_102_200", start: 102, end: 200},
		chunkDef{name: "m_201_300", start: 201, end: 300},
	)
	f.writeArchive(records(1, 250))
	before := digest(t, f.archive)

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeGap {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if ExitCode(result.Outcome.Status) != ExitCodeFailure {
		t.Error("gap must exit non-zero")
	}
	if n := f.fetcher.total(); n != 1 {
		t.Errorf("fetches = %d, want 1 (manifest only)", n)
	}
	if digest(t, f.archive) != before {
		t.Error("archive mutated on failure")
	}
	f.assertNoScratch()
}

func TestExecute_CorruptTail(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(records(1, 250) + `{"num":251,"tit`)

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeCorruptTail {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if !strings.Contains(result.Outcome.Remediation, "--attempt-repair") {
		t.Errorf("Remediation = %q", result.Outcome.Remediation)
	}
	if n := f.fetcher.total(); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}

	result = f.execute(context.Background(), "run-2", true)
	if result.Outcome.Status != types.OutcomeRepaired {
		t.Fatalf("repair Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if ExitCode(result.Outcome.Status) != ExitCodeSuccess {
		t.Error("repair must exit zero")
	}
	if result.Repair == nil || result.Repair.Truncated != int64(len(`{"num":251,"tit`)) || result.Repair.LastRecord != 250 {
		t.Errorf("Repair = %+v", result.Repair)
	}
	if got := f.readArchive(); got != records(1, 250) {
		t.Error("repair did not restore the valid prefix")
	}
	if n := f.fetcher.total(); n != 0 {
		t.Errorf("repair run fetched %d sources", n)
	}

	result = f.execute(context.Background(), "run-3", false)
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("post-repair Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if got := f.readArchive(); got != records(1, 300) {
		t.Error("archive content mismatch after repair and resume")
	}
}

func TestExecute_DownloadFailure(t *testing.T) {
	f := newFixture(t, 300,
		chunkDef{name: "y_1_100", start: 1, end: 100, yearly: true},
		chunkDef{name: "m_101_200", start: 101, end: 200},
		chunkDef{name: "m_201_300", start: 201, end: 300, missing: true},
	)
	f.writeArchive(records(1, 150))
	before := digest(t, f.archive)

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeDownloadFailure {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if n := f.fetcher.count(chunkPath(f.dir, "m_201_300")); n != 2 {
		t.Errorf("missing chunk attempted %d times, want 2", n)
	}
	if digest(t, f.archive) != before {
		t.Error("archive mutated on download failure")
	}
	f.assertNoScratch()
}

func TestExecute_DecompressionFailure(t *testing.T) {
	f := newFixture(t, 300,
		chunkDef{name: "y_1_100", start: 1, end: 100, yearly: true},
		chunkDef{name: "m_101_200", start: 101, end: 200},
		chunkDef{name: "m_201_300", start: 201, end: 300, body: []byte("definitely not zstd")},
	)
	f.writeArchive(records(1, 150))
	before := digest(t, f.archive)

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeDecompressionFailure {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if digest(t, f.archive) != before {
		t.Error("archive mutated on decompression failure")
	}
	f.assertNoScratch()
}

func TestExecute_ChunkContentMismatch(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	short := enc.EncodeAll([]byte(records(201, 299)), nil)
	enc.Close()

	f := newFixture(t, 300,
		chunkDef{name: "y_1_200", start: 1, end: 200, yearly: true},
		chunkDef{name: "m_201_300", start: 201, end: 300, body: short},
	)
	f.writeArchive(records(1, 250))
	before := digest(t, f.archive)

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeOffsetFailure {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if digest(t, f.archive) != before {
		t.Error("archive mutated on offset failure")
	}
}

func TestExecute_BoundsCheckSwitch(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	short := enc.EncodeAll([]byte(records(201, 299)), nil)
	enc.Close()

	newShort := func() *fixture {
		f := newFixture(t, 300,
			chunkDef{name: "y_1_200", start: 1, end: 200, yearly: true},
			chunkDef{name: "m_201_300", start: 201, end: 300, body: short},
		)
		f.writeArchive(records(1, 200))
		return f
	}

	// No trim is needed, and disabling order sampling leaves the range check on.
	f := newShort()
	f.configure = func(c *Config) { c.VerifySamples = 0 }
	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeOffsetFailure {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	var searchErr *locate.OffsetSearchError
	if !errors.As(result.Err, &searchErr) || searchErr.Reason != locate.ReasonBounds {
		t.Errorf("Err = %v, want a bounds mismatch", result.Err)
	}

	f = newShort()
	f.configure = func(c *Config) { c.SkipBoundsCheck = true }
	result = f.execute(context.Background(), "run-2", false)
	// Unchecked, the short chunk is appended and only the tail check after
	// the append notices.
	if result.Outcome.Status != types.OutcomeAppendFailure {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if f.readArchive() != records(1, 299) {
		t.Error("unchecked chunk should be appended as published")
	}
}

func TestExecute_ManifestFailure(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	if err := os.Remove(f.manifest); err != nil {
		t.Fatal(err)
	}
	f.writeArchive(records(1, 250))

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeManifestFailure {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	f.assertNoScratch()
}

func TestExecute_Canceled(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(records(1, 250))
	before := digest(t, f.archive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.execute(ctx, "run-1", false)
	if result.Outcome.Status != types.OutcomeCanceled {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if digest(t, f.archive) != before {
		t.Error("archive mutated on cancellation")
	}
	f.assertNoScratch()

	// The canceled run is still recorded.
	last, err := f.ledger.Last(context.Background(), f.archive)
	if err != nil {
		t.Fatal(err)
	}
	if last.Status != string(types.OutcomeCanceled) {
		t.Errorf("ledger status = %q", last.Status)
	}
}

func TestExecute_SweepsKilledRun(t *testing.T) {
	f := newFixture(t, 300, standardChunks()...)
	f.writeArchive(records(1, 300))

	// A previous run that never reached its deferred cleanup.
	killed, _, err := scratch.Open(f.archive, "killed")
	if err != nil {
		t.Fatal(err)
	}

	result := f.execute(context.Background(), "run-1", false)
	if result.Outcome.Status != types.OutcomeUpToDate {
		t.Fatalf("Outcome = %s: %s", result.Outcome.Status, result.Outcome.Message)
	}
	if len(result.Swept) != 1 || result.Swept[0] != killed.Root() {
		t.Errorf("Swept = %v", result.Swept)
	}
	f.assertNoScratch()
}

func TestNewOrchestrator_Validation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RunMeta:  &types.RunMeta{RunID: "r", ArchivePath: "a.ndjson"},
			Resolver: manifest.NewResolver(fetch.FileFetcher{}, manifest.Options{URL: "m.json"}),
			Fetcher:  fetch.FileFetcher{},
			Logger:   log.Nop(),
		}
	}
	if _, err := NewOrchestrator(valid()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := map[string]func(*Config){
		"nil run meta":     func(c *Config) { c.RunMeta = nil },
		"empty run id":     func(c *Config) { c.RunMeta.RunID = "" },
		"no resolver":      func(c *Config) { c.Resolver = nil },
		"no fetcher":       func(c *Config) { c.Fetcher = nil },
		"negative samples": func(c *Config) { c.VerifySamples = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			if _, err := NewOrchestrator(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
