package types

import "fmt"

// Granularity is the release cadence a chunk was published at.
type Granularity string

const (
	// GranularityYearly chunks carry an explicit URL in the manifest.
	GranularityYearly Granularity = "yearly"
	// GranularityMonthly chunks are resolved through the chunk URL template.
	GranularityMonthly Granularity = "monthly"
	// GranularityDaily chunks are resolved through the chunk URL template.
	GranularityDaily Granularity = "daily"
)

// ChunkDescriptor describes one remote compressed chunk covering the
// inclusive record range [Start, End].
type ChunkDescriptor struct {
	Name        string
	SourceURL   string
	Start       int64
	End         int64
	Granularity Granularity
}

// Records returns the number of records the chunk covers.
func (d ChunkDescriptor) Records() int64 {
	return d.End - d.Start + 1
}

// Contains reports whether record number n falls inside the chunk.
func (d ChunkDescriptor) Contains(n int64) bool {
	return n >= d.Start && n <= d.End
}

func (d ChunkDescriptor) String() string {
	return fmt.Sprintf("%s[%d..%d]", d.Name, d.Start, d.End)
}

// Manifest is the parsed chunk manifest for a single run.
// It is immutable once resolved.
type Manifest struct {
	// LatestAvailable is the highest record number currently published.
	LatestAvailable int64
	// Chunks are ordered yearly, then monthly, then daily.
	Chunks []ChunkDescriptor
}
