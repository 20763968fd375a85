// Package archive reads and grows the local NDJSON archive.
//
// The archive is append-only and ascending by record number, so its final
// line alone determines the resume point. The only mutations are Append
// (growth) and Repair (truncation of an incomplete final line).
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/record"
	"github.com/justapithecus/ndarchive/types"
)

const (
	// tailBlockSize is the backward scan window when hunting for the final line.
	tailBlockSize = 64 * 1024
	// maxRecordBytes bounds a single record; a longer final line is treated as corrupt.
	maxRecordBytes = 16 * 1024 * 1024
)

// Inspect derives the local resume state from the archive's final line.
// A missing or empty archive yields LastRecord 0. An unparseable final line
// yields a *CorruptTailError.
func Inspect(path string) (types.LocalState, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.LocalState{}, nil
		}
		return types.LocalState{}, fmt.Errorf("open archive: %w", err)
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return types.LocalState{}, fmt.Errorf("stat archive: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return types.LocalState{}, nil
	}

	tail, err := readTail(f, size)
	if err != nil {
		return types.LocalState{}, err
	}

	state := types.LocalState{Size: size, NeedsNewline: !tail.terminated}
	if tail.tooLong {
		return state, &CorruptTailError{
			Path:      path,
			Size:      size,
			TailBytes: size - tail.start,
			Err:       fmt.Errorf("final line exceeds %d bytes", maxRecordBytes),
		}
	}

	n, err := record.NumStrict(tail.line)
	if err != nil {
		return state, &CorruptTailError{Path: path, Size: size, TailBytes: size - tail.start, Err: err}
	}
	state.LastRecord = n
	return state, nil
}

type tailLine struct {
	line       []byte
	start      int64
	terminated bool
	tooLong    bool
}

// readTail locates the final line by scanning backwards from EOF.
// A single trailing newline terminates the final line rather than starting
// an empty one.
func readTail(r io.ReaderAt, size int64) (tailLine, error) {
	end := size
	var last [1]byte
	if _, err := r.ReadAt(last[:], size-1); err != nil {
		return tailLine{}, fmt.Errorf("read archive tail: %w", err)
	}
	terminated := last[0] == '\n'
	if terminated {
		end = size - 1
	}

	start, err := lineStartBefore(r, end)
	if err != nil {
		return tailLine{}, err
	}

	t := tailLine{start: start, terminated: terminated}
	if end-start > maxRecordBytes {
		t.tooLong = true
		return t, nil
	}

	t.line = make([]byte, end-start)
	if _, err := r.ReadAt(t.line, start); err != nil && !errors.Is(err, io.EOF) {
		return tailLine{}, fmt.Errorf("read final line: %w", err)
	}
	return t, nil
}

// lineStartBefore returns the offset just past the last newline strictly
// before pos, or 0 when there is none.
func lineStartBefore(r io.ReaderAt, pos int64) (int64, error) {
	buf := make([]byte, tailBlockSize)
	for pos > 0 {
		n := int64(tailBlockSize)
		if n > pos {
			n = pos
		}
		off := pos - n
		if _, err := r.ReadAt(buf[:n], off); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("scan archive tail: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return off + int64(i) + 1, nil
		}
		pos = off
	}
	return 0, nil
}
