package types

// OutcomeStatus represents the final status of a reconstruction run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates chunks were appended and the archive is current.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeUpToDate indicates no chunk was needed.
	OutcomeUpToDate OutcomeStatus = "up_to_date"
	// OutcomeRepaired indicates a corrupt tail was truncated; the run must be repeated.
	OutcomeRepaired OutcomeStatus = "repaired"
	// OutcomeManifestFailure indicates the manifest could not be fetched or parsed.
	OutcomeManifestFailure OutcomeStatus = "failed_manifest"
	// OutcomeCorruptTail indicates the local archive ends in an unparseable record.
	OutcomeCorruptTail OutcomeStatus = "failed_corrupt_tail"
	// OutcomeGap indicates the manifest (or the archive/manifest seam) is not contiguous.
	OutcomeGap OutcomeStatus = "failed_gap"
	// OutcomeDownloadFailure indicates a chunk exhausted its retries.
	OutcomeDownloadFailure OutcomeStatus = "failed_download"
	// OutcomeDecompressionFailure indicates a chunk failed to decompress.
	OutcomeDecompressionFailure OutcomeStatus = "failed_decompress"
	// OutcomeOffsetFailure indicates the resume record could not be located.
	OutcomeOffsetFailure OutcomeStatus = "failed_offset"
	// OutcomeAppendFailure indicates the archive append failed part-way.
	OutcomeAppendFailure OutcomeStatus = "failed_append"
	// OutcomeCanceled indicates the run was interrupted.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeInternal covers failures outside the taxonomy (scratch, config).
	OutcomeInternal OutcomeStatus = "failed_internal"
)

// Succeeded reports whether the status maps to exit code 0.
func (s OutcomeStatus) Succeeded() bool {
	switch s {
	case OutcomeSuccess, OutcomeUpToDate, OutcomeRepaired:
		return true
	default:
		return false
	}
}

// RunOutcome represents the final outcome of a run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
	// Remediation is operator guidance for recoverable failures.
	Remediation string
}
