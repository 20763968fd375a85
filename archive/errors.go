package archive

import "fmt"

// CorruptTailError reports that the archive's final line is not a complete
// record. TailBytes is the exact length to truncate, including the trailing
// newline when one is present.
type CorruptTailError struct {
	Path      string
	Size      int64
	TailBytes int64
	Err       error
}

func (e *CorruptTailError) Error() string {
	return fmt.Sprintf("archive %s ends with an incomplete record (%d trailing bytes): %v", e.Path, e.TailBytes, e.Err)
}

func (e *CorruptTailError) Unwrap() error {
	return e.Err
}

// Remediation returns operator guidance for recovering the archive.
func (e *CorruptTailError) Remediation() string {
	return fmt.Sprintf("re-run with --attempt-repair to truncate the final %d bytes of %s, then run again to resume", e.TailBytes, e.Path)
}

// AppendError reports a failure while growing the archive. The archive holds
// a valid prefix plus possibly a partial final chunk.
type AppendError struct {
	Chunk string
	Err   error
}

func (e *AppendError) Error() string {
	if e.Chunk == "" {
		return fmt.Sprintf("append failed: %v", e.Err)
	}
	return fmt.Sprintf("append of chunk %s failed: %v", e.Chunk, e.Err)
}

func (e *AppendError) Unwrap() error {
	return e.Err
}
