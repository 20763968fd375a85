package types

// LocalState is the resume position derived from the local archive's final line.
type LocalState struct {
	// LastRecord is the ordering value of the final record. 0 means empty.
	LastRecord int64
	// Size is the archive size in bytes at inspection time.
	Size int64
	// NeedsNewline is set when the final record is valid but unterminated.
	NeedsNewline bool
}

// ResumePoint returns the next record number the archive needs.
func (s LocalState) ResumePoint() int64 {
	return s.LastRecord + 1
}

// Empty reports whether the archive holds no records.
func (s LocalState) Empty() bool {
	return s.LastRecord == 0
}
