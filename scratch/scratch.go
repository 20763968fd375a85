// Package scratch manages the per-run temporary directory that holds
// downloaded, decompressed and trimmed chunks.
//
// The directory sits beside the archive so trim and append never cross a
// filesystem boundary. A small msgpack journal names the live directory;
// a run killed before its deferred Close leaves the journal behind and the
// next Open sweeps what it lists.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/ndarchive/iox"
)

const journalVersion = 1

type journalEntry struct {
	Dir     string    `msgpack:"dir"`
	RunID   string    `msgpack:"run_id"`
	PID     int       `msgpack:"pid"`
	Created time.Time `msgpack:"created"`
}

type journal struct {
	Version int            `msgpack:"version"`
	Entries []journalEntry `msgpack:"entries"`
}

// Dir is one run's scratch directory.
type Dir struct {
	path    string
	journal string

	mu     sync.Mutex
	closed bool
}

// Prefix returns the name prefix shared by every scratch directory of
// archivePath.
func Prefix(archivePath string) string {
	return "." + filepath.Base(archivePath) + ".scratch-"
}

// JournalPath returns the journal location for archivePath.
func JournalPath(archivePath string) string {
	return filepath.Join(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".scratch.journal")
}

// Open sweeps leftovers from earlier runs, then creates a fresh scratch
// directory for runID and records it in the journal. The returned slice
// lists swept directories.
func Open(archivePath, runID string) (*Dir, []string, error) {
	if runID == "" {
		return nil, nil, errors.New("scratch: run id is required")
	}

	swept, err := Sweep(archivePath)
	if err != nil {
		return nil, nil, err
	}

	parent := filepath.Dir(archivePath)
	path := filepath.Join(parent, Prefix(archivePath)+runID)
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, swept, fmt.Errorf("scratch: create %s: %w", path, err)
	}

	d := &Dir{path: path, journal: JournalPath(archivePath)}
	j := journal{
		Version: journalVersion,
		Entries: []journalEntry{{Dir: path, RunID: runID, PID: os.Getpid(), Created: time.Now().UTC()}},
	}
	if err := writeJournal(d.journal, j); err != nil {
		_ = os.RemoveAll(path)
		return nil, swept, err
	}
	return d, swept, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.path
}

// Path returns a file path inside the directory. name is reduced to its
// base so callers cannot escape the directory.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.path, filepath.Base(name))
}

// Close removes the directory and its journal. Safe to call more than once.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	rmErr := os.RemoveAll(d.path)
	jErr := iox.RemoveIfExists(d.journal)
	return errors.Join(rmErr, jErr)
}

// Sweep removes scratch directories listed in archivePath's journal and
// then the journal itself. Entries that do not look like scratch
// directories of this archive are ignored.
func Sweep(archivePath string) ([]string, error) {
	jpath := JournalPath(archivePath)
	j, err := readJournal(jpath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		// An unreadable journal cannot name anything to remove.
		return nil, iox.RemoveIfExists(jpath)
	}

	parent := filepath.Clean(filepath.Dir(archivePath))
	prefix := Prefix(archivePath)

	var swept []string
	for _, e := range j.Entries {
		dir := filepath.Clean(e.Dir)
		if filepath.Dir(dir) != parent || !strings.HasPrefix(filepath.Base(dir), prefix) {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return swept, fmt.Errorf("scratch: sweep %s: %w", dir, err)
		}
		swept = append(swept, dir)
	}
	return swept, iox.RemoveIfExists(jpath)
}

func readJournal(path string) (journal, error) {
	var j journal
	data, err := os.ReadFile(path)
	if err != nil {
		return j, err
	}
	if err := msgpack.Unmarshal(data, &j); err != nil {
		return j, fmt.Errorf("scratch: decode journal: %w", err)
	}
	if j.Version != journalVersion {
		return j, fmt.Errorf("scratch: journal version %d not supported", j.Version)
	}
	return j, nil
}

func writeJournal(path string, j journal) error {
	data, err := msgpack.Marshal(j)
	if err != nil {
		return fmt.Errorf("scratch: encode journal: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("scratch: write journal: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		iox.DiscardClose(f)
		_ = os.Remove(tmp)
		return fmt.Errorf("scratch: write journal: %w", err)
	}
	if err := iox.SyncClose(f); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("scratch: write journal: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("scratch: write journal: %w", err)
	}
	return nil
}
