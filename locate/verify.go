package locate

import (
	"fmt"
	"io"

	"github.com/justapithecus/ndarchive/record"
)

// CheckAscending samples lines at evenly spaced offsets and fails if their
// num values are not strictly ascending. It is a cheap screen for chunks that
// would silently break Search, not a proof of order.
func CheckAscending(r io.ReaderAt, name string, size int64, samples int, maxProbe int64) error {
	if size == 0 || samples < 2 {
		return nil
	}
	if maxProbe <= 0 {
		maxProbe = DefaultMaxProbe
	}
	s := &scanner{r: r, name: name, size: size, maxProbe: maxProbe}

	prevStart := int64(-1)
	var prev int64
	for i := 0; i < samples; i++ {
		pos := size * int64(i) / int64(samples)
		ln, err := s.lineAt(pos)
		if err != nil {
			return err
		}
		if ln.start == prevStart {
			continue
		}
		v, err := record.Num(ln.text)
		if err != nil {
			return s.fail(ReasonUnparseable, ln.start, err)
		}
		if prevStart >= 0 && v <= prev {
			return s.fail(ReasonOrder, ln.start, fmt.Errorf("num %d follows %d", v, prev))
		}
		prevStart, prev = ln.start, v
	}
	return nil
}

// Bounds returns the num values of the first and last lines.
func Bounds(r io.ReaderAt, name string, size, maxProbe int64) (first, last int64, err error) {
	if maxProbe <= 0 {
		maxProbe = DefaultMaxProbe
	}
	s := &scanner{r: r, name: name, size: size, maxProbe: maxProbe}
	if size == 0 {
		return 0, 0, s.fail(ReasonBounds, -1, fmt.Errorf("empty chunk"))
	}

	head, err := s.lineAt(0)
	if err != nil {
		return 0, 0, err
	}
	if first, err = record.Num(head.text); err != nil {
		return 0, 0, s.fail(ReasonUnparseable, 0, err)
	}

	tail, err := s.lineAt(size - 1)
	if err != nil {
		return 0, 0, err
	}
	if tail.start == tail.end && tail.start > 0 {
		// Trailing newline on an empty final position; step onto the record it ends.
		tail, err = s.lineAt(tail.start - 1)
		if err != nil {
			return 0, 0, err
		}
	}
	if last, err = record.Num(tail.text); err != nil {
		return 0, 0, s.fail(ReasonUnparseable, tail.start, err)
	}
	return first, last, nil
}

// CheckBounds verifies that the file spans exactly [start, end].
func CheckBounds(r io.ReaderAt, name string, size, start, end, maxProbe int64) error {
	first, last, err := Bounds(r, name, size, maxProbe)
	if err != nil {
		return err
	}
	if first != start || last != end {
		return &OffsetSearchError{
			Path:   name,
			Target: start,
			Reason: ReasonBounds,
			Offset: -1,
			Err:    fmt.Errorf("file spans [%d, %d], manifest says [%d, %d]", first, last, start, end),
		}
	}
	return nil
}
