package types

import "testing"

func TestRunMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    RunMeta
		wantErr bool
	}{
		{"valid", RunMeta{RunID: "run-1", ArchivePath: "archive.ndjson"}, false},
		{"missing run id", RunMeta{ArchivePath: "archive.ndjson"}, true},
		{"missing archive", RunMeta{RunID: "run-1"}, true},
		{"root path", RunMeta{RunID: "run-1", ArchivePath: "/"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkDescriptor_Contains(t *testing.T) {
	d := ChunkDescriptor{Name: "m_201_300", Start: 201, End: 300}

	if d.Records() != 100 {
		t.Errorf("Records() = %d, want 100", d.Records())
	}
	for _, n := range []int64{201, 250, 300} {
		if !d.Contains(n) {
			t.Errorf("Contains(%d) = false, want true", n)
		}
	}
	for _, n := range []int64{200, 301} {
		if d.Contains(n) {
			t.Errorf("Contains(%d) = true, want false", n)
		}
	}
}

func TestLocalState_ResumePoint(t *testing.T) {
	if got := (LocalState{}).ResumePoint(); got != 1 {
		t.Errorf("empty ResumePoint() = %d, want 1", got)
	}
	if !(LocalState{}).Empty() {
		t.Error("zero LocalState should be empty")
	}
	if got := (LocalState{LastRecord: 250}).ResumePoint(); got != 251 {
		t.Errorf("ResumePoint() = %d, want 251", got)
	}
}

func TestOutcomeStatus_Succeeded(t *testing.T) {
	ok := []OutcomeStatus{OutcomeSuccess, OutcomeUpToDate, OutcomeRepaired}
	for _, s := range ok {
		if !s.Succeeded() {
			t.Errorf("%s.Succeeded() = false, want true", s)
		}
	}
	failed := []OutcomeStatus{
		OutcomeManifestFailure, OutcomeCorruptTail, OutcomeGap, OutcomeDownloadFailure,
		OutcomeDecompressionFailure, OutcomeOffsetFailure, OutcomeAppendFailure,
		OutcomeCanceled, OutcomeInternal,
	}
	for _, s := range failed {
		if s.Succeeded() {
			t.Errorf("%s.Succeeded() = true, want false", s)
		}
	}
}
