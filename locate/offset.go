// Package locate finds and trims at a record boundary inside an uncompressed
// chunk file without reading the file into memory.
//
// Search assumes the chunk's num values are strictly ascending and gap-free.
// That property is established by the chunk producer and is not proved here;
// CheckAscending and Bounds offer cheap sampled checks, nothing stronger.
package locate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/record"
)

// scanWindow is the read size used while hunting for line boundaries.
const scanWindow = 64 * 1024

// DefaultMaxProbe bounds the bytes a single probe may scan. Records are far
// smaller; hitting the bound means the file has no usable delimiters.
const DefaultMaxProbe = 64 * 1024 * 1024

// Range is the byte span of one record, excluding its trailing newline.
type Range struct {
	Start int64
	End   int64
}

// Result is a successful search.
type Result struct {
	Range
	// Probes is the number of lines examined.
	Probes int
}

// Locate opens path and searches it for the record whose num equals target.
func Locate(path string, size, target, maxProbe int64) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, &OffsetSearchError{Path: path, Target: target, Reason: ReasonIO, Offset: -1, Err: err}
	}
	defer iox.DiscardClose(f)
	return Search(f, path, size, target, maxProbe)
}

// Search binary-searches the byte positions [0, size) of r. name is used in
// errors only.
func Search(r io.ReaderAt, name string, size, target, maxProbe int64) (Result, error) {
	if maxProbe <= 0 {
		maxProbe = DefaultMaxProbe
	}
	s := &scanner{r: r, name: name, size: size, maxProbe: maxProbe, target: target}

	low, high := int64(0), size-1
	probes := 0
	for low <= high {
		mid := low + (high-low)/2
		ln, err := s.lineAt(mid)
		if err != nil {
			return Result{Probes: probes}, err
		}
		probes++

		v, err := record.Num(ln.text)
		if err != nil {
			return Result{Probes: probes}, s.fail(ReasonUnparseable, ln.start, err)
		}

		switch {
		case v < target:
			low = ln.end + 1
		case v > target:
			high = ln.start - 1
		default:
			return Result{Range: Range{Start: ln.start, End: ln.end}, Probes: probes}, nil
		}
	}
	return Result{Probes: probes}, s.fail(ReasonNotFound, -1, nil)
}

type line struct {
	start int64
	end   int64
	text  []byte
}

type scanner struct {
	r        io.ReaderAt
	name     string
	size     int64
	maxProbe int64
	target   int64
	buf      [scanWindow]byte
}

func (s *scanner) fail(reason Reason, offset int64, err error) error {
	return &OffsetSearchError{Path: s.name, Target: s.target, Reason: reason, Offset: offset, Err: err}
}

// lineAt returns the line containing pos. A newline at pos belongs to the
// line it terminates.
func (s *scanner) lineAt(pos int64) (line, error) {
	var scanned int64

	start, err := s.scanBack(pos, &scanned)
	if err != nil {
		return line{}, err
	}
	end, err := s.scanForward(pos, &scanned)
	if err != nil {
		return line{}, err
	}

	text := make([]byte, end-start)
	if _, err := s.r.ReadAt(text, start); err != nil && !errors.Is(err, io.EOF) {
		return line{}, s.fail(ReasonIO, start, err)
	}
	return line{start: start, end: end, text: text}, nil
}

// scanBack finds the offset just past the last newline strictly before pos.
func (s *scanner) scanBack(pos int64, scanned *int64) (int64, error) {
	for pos > 0 {
		n, err := s.window(pos, scanned)
		if err != nil {
			return 0, err
		}
		if n > pos {
			n = pos
		}
		off := pos - n
		if err := s.read(off, n); err != nil {
			return 0, err
		}
		*scanned += n
		if i := bytes.LastIndexByte(s.buf[:n], '\n'); i >= 0 {
			return off + int64(i) + 1, nil
		}
		pos = off
	}
	return 0, nil
}

// scanForward finds the first newline at or after pos, or EOF.
func (s *scanner) scanForward(pos int64, scanned *int64) (int64, error) {
	for pos < s.size {
		n, err := s.window(pos, scanned)
		if err != nil {
			return 0, err
		}
		if rem := s.size - pos; n > rem {
			n = rem
		}
		if err := s.read(pos, n); err != nil {
			return 0, err
		}
		*scanned += n
		if i := bytes.IndexByte(s.buf[:n], '\n'); i >= 0 {
			return pos + int64(i), nil
		}
		pos += n
	}
	return s.size, nil
}

// window returns the next read size, failing once the probe bound is spent.
func (s *scanner) window(pos int64, scanned *int64) (int64, error) {
	left := s.maxProbe - *scanned
	if left <= 0 {
		return 0, s.fail(ReasonProbeWindow, pos, fmt.Errorf("no line boundary within %d bytes", s.maxProbe))
	}
	n := int64(scanWindow)
	if n > left {
		n = left
	}
	return n, nil
}

func (s *scanner) read(off, n int64) error {
	if _, err := s.r.ReadAt(s.buf[:n], off); err != nil && !errors.Is(err, io.EOF) {
		return s.fail(ReasonIO, off, err)
	}
	return nil
}
