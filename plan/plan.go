// Package plan selects the chunks a run must fetch to extend the local
// archive up to the latest published record.
package plan

import (
	"fmt"

	"github.com/justapithecus/ndarchive/types"
)

// GapError reports a break in record continuity, either between two
// manifest chunks or between the local archive and the first chunk.
type GapError struct {
	// Prev is the chunk before the gap. Empty when the gap is at the
	// archive seam.
	Prev string
	// Next is the chunk after the gap.
	Next string
	// Expected is the record number that should have started Next.
	Expected int64
	// Got is Next's actual start.
	Got int64
}

func (e *GapError) Error() string {
	if e.Prev == "" {
		return fmt.Sprintf("archive ends at record %d but the first needed chunk %s starts at %d",
			e.Expected-1, e.Next, e.Got)
	}
	return fmt.Sprintf("manifest gap: chunk %s should start at %d after %s, starts at %d",
		e.Next, e.Expected, e.Prev, e.Got)
}

// Scratch allocates run-scoped temporary file paths.
type Scratch interface {
	Path(name string) string
}

// Plan is the ordered set of chunks to fetch for a run.
type Plan struct {
	// Resume is the first record number the archive needs.
	Resume int64
	// Latest is the manifest's highest published record.
	Latest int64
	// Items are the selected chunks in manifest order.
	Items []types.WorkItem
	// NeedsTrim is set when the first item starts before Resume.
	NeedsTrim bool
}

// UpToDate reports whether there is nothing to fetch.
func (p *Plan) UpToDate() bool {
	return len(p.Items) == 0
}

// Records returns the number of records the run will add.
func (p *Plan) Records() int64 {
	if p.UpToDate() {
		return 0
	}
	return p.Items[len(p.Items)-1].Descriptor.End - p.Resume + 1
}

// Build validates manifest continuity and selects every chunk whose end is
// at or past the resume point. The whole manifest is checked before
// anything is selected, so a gap anywhere fails the run before any chunk
// is downloaded.
func Build(m *types.Manifest, state types.LocalState, scratch Scratch) (*Plan, error) {
	if err := CheckContiguous(m.Chunks); err != nil {
		return nil, err
	}

	resume := state.ResumePoint()
	p := &Plan{Resume: resume, Latest: m.LatestAvailable}
	if state.LastRecord >= m.LatestAvailable {
		return p, nil
	}

	for _, d := range m.Chunks {
		if d.End < resume {
			continue
		}
		p.Items = append(p.Items, types.WorkItem{
			Descriptor:       d,
			CompressedPath:   scratch.Path(d.Name + ".compressed"),
			UncompressedPath: scratch.Path(d.Name + ".ndjson"),
		})
	}

	if p.UpToDate() {
		return p, nil
	}

	first := p.Items[0].Descriptor
	if first.Start > resume {
		return nil, &GapError{Next: first.Name, Expected: resume, Got: first.Start}
	}
	p.NeedsTrim = first.Start < resume
	return p, nil
}

// CheckContiguous verifies every chunk starts exactly one past the end of
// the chunk before it.
func CheckContiguous(chunks []types.ChunkDescriptor) error {
	for i := 1; i < len(chunks); i++ {
		prev, next := chunks[i-1], chunks[i]
		if next.Start != prev.End+1 {
			return &GapError{Prev: prev.Name, Next: next.Name, Expected: prev.End + 1, Got: next.Start}
		}
	}
	return nil
}
