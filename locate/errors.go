package locate

import "fmt"

// Reason classifies an offset search failure.
type Reason string

const (
	// ReasonProbeWindow means a probe scanned past its bound without finding a
	// line boundary; the file is malformed or not newline-delimited.
	ReasonProbeWindow Reason = "probe_window_exceeded"
	// ReasonUnparseable means a probed line had no usable num field.
	ReasonUnparseable Reason = "unparseable_line"
	// ReasonNotFound means the search space was exhausted without a match.
	ReasonNotFound Reason = "target_not_found"
	// ReasonOrder means sampled lines were not strictly ascending.
	ReasonOrder Reason = "not_ascending"
	// ReasonBounds means the file's first or last record disagrees with the
	// chunk's advertised range.
	ReasonBounds Reason = "bounds_mismatch"
	// ReasonIO wraps a read failure.
	ReasonIO Reason = "io"
)

// OffsetSearchError reports a failed offset search or precondition check.
type OffsetSearchError struct {
	Path   string
	Target int64
	Reason Reason
	// Offset is the probe position at failure, -1 when not applicable.
	Offset int64
	Err    error
}

func (e *OffsetSearchError) Error() string {
	msg := fmt.Sprintf("offset search for num=%d in %s failed (%s)", e.Target, e.Path, e.Reason)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OffsetSearchError) Unwrap() error {
	return e.Err
}
