package reconstruct

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/ndarchive/archive"
	"github.com/justapithecus/ndarchive/decompress"
	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/locate"
	"github.com/justapithecus/ndarchive/manifest"
	"github.com/justapithecus/ndarchive/plan"
	"github.com/justapithecus/ndarchive/types"
)

// Exit codes for the CLI.
const (
	ExitCodeSuccess = 0 // success, up to date, repaired
	ExitCodeFailure = 1 // any fatal error
)

// ExitCode maps an outcome status to the process exit code.
func ExitCode(status types.OutcomeStatus) int {
	if status.Succeeded() {
		return ExitCodeSuccess
	}
	return ExitCodeFailure
}

// DetermineOutcome classifies a run failure. Cancellation is checked first
// so an interrupted download or decompression reports as canceled.
func DetermineOutcome(err error) *types.RunOutcome {
	var (
		fetchErr   *manifest.FetchError
		parseErr   *manifest.ParseError
		tailErr    *archive.CorruptTailError
		gapErr     *plan.GapError
		dlErr      *fetch.DownloadError
		decompErr  *decompress.DecompressionError
		offsetErr  *locate.OffsetSearchError
		appendErr  *archive.AppendError
		outcomeFor = func(s types.OutcomeStatus) *types.RunOutcome {
			return &types.RunOutcome{Status: s, Message: err.Error()}
		}
	)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o := outcomeFor(types.OutcomeCanceled)
		o.Message = fmt.Sprintf("run canceled: %v", err)
		return o
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		return outcomeFor(types.OutcomeManifestFailure)
	case errors.As(err, &tailErr):
		o := outcomeFor(types.OutcomeCorruptTail)
		o.Remediation = tailErr.Remediation()
		return o
	case errors.As(err, &gapErr):
		o := outcomeFor(types.OutcomeGap)
		o.Remediation = "the manifest does not cover the archive contiguously; wait for the publisher to fix it"
		return o
	case errors.As(err, &dlErr):
		return outcomeFor(types.OutcomeDownloadFailure)
	case errors.As(err, &decompErr):
		return outcomeFor(types.OutcomeDecompressionFailure)
	case errors.As(err, &offsetErr):
		return outcomeFor(types.OutcomeOffsetFailure)
	case errors.As(err, &appendErr):
		o := outcomeFor(types.OutcomeAppendFailure)
		o.Remediation = "the archive may end in a partial chunk; re-run with --attempt-repair"
		return o
	default:
		return outcomeFor(types.OutcomeInternal)
	}
}
