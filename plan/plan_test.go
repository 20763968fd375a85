package plan

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/justapithecus/ndarchive/types"
)

type dirScratch string

func (d dirScratch) Path(name string) string { return filepath.Join(string(d), name) }

func chunk(name string, start, end int64) types.ChunkDescriptor {
	return types.ChunkDescriptor{Name: name, SourceURL: "file:///" + name, Start: start, End: end}
}

func manifest(latest int64, chunks ...types.ChunkDescriptor) *types.Manifest {
	return &types.Manifest{LatestAvailable: latest, Chunks: chunks}
}

func names(p *Plan) []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Descriptor.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild_Selection(t *testing.T) {
	m := manifest(300,
		chunk("y_1_100", 1, 100),
		chunk("m_101_200", 101, 200),
		chunk("m_201_300", 201, 300),
	)

	tests := []struct {
		name      string
		last      int64
		want      []string
		needsTrim bool
		records   int64
	}{
		{"empty archive", 0, []string{"y_1_100", "m_101_200", "m_201_300"}, false, 300},
		{"mid chunk", 250, []string{"m_201_300"}, true, 50},
		{"on boundary", 200, []string{"m_201_300"}, false, 100},
		{"last record of first chunk", 100, []string{"m_101_200", "m_201_300"}, false, 200},
		{"one behind", 299, []string{"m_201_300"}, true, 1},
		{"up to date", 300, nil, false, 0},
		{"ahead of manifest", 400, nil, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(m, types.LocalState{LastRecord: tt.last}, dirScratch("/scratch"))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := names(p); !equal(got, tt.want) {
				t.Errorf("selected %v, want %v", got, tt.want)
			}
			if p.NeedsTrim != tt.needsTrim {
				t.Errorf("NeedsTrim = %v, want %v", p.NeedsTrim, tt.needsTrim)
			}
			if p.Records() != tt.records {
				t.Errorf("Records() = %d, want %d", p.Records(), tt.records)
			}
			if p.Resume != tt.last+1 {
				t.Errorf("Resume = %d, want %d", p.Resume, tt.last+1)
			}
		})
	}
}

func TestBuild_WorkItemPaths(t *testing.T) {
	m := manifest(10, chunk("a_1_10", 1, 10))
	p, err := Build(m, types.LocalState{}, dirScratch("/tmp/run"))
	if err != nil {
		t.Fatal(err)
	}
	it := p.Items[0]
	if it.CompressedPath != filepath.Join("/tmp/run", "a_1_10.compressed") {
		t.Errorf("CompressedPath = %q", it.CompressedPath)
	}
	if it.UncompressedPath != filepath.Join("/tmp/run", "a_1_10.ndjson") {
		t.Errorf("UncompressedPath = %q", it.UncompressedPath)
	}
}

func TestBuild_GapInManifest(t *testing.T) {
	// The gap is in chunks the archive already covers; it still fails.
	m := manifest(300,
		chunk("y_1_100", 1, 100),
		chunk("m_102_200", 102, 200),
		chunk("m_201_300", 201, 300),
	)
	_, err := Build(m, types.LocalState{LastRecord: 250}, dirScratch("/s"))

	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("expected *GapError, got %T: %v", err, err)
	}
	if gap.Prev != "y_1_100" || gap.Next != "m_102_200" || gap.Expected != 101 || gap.Got != 102 {
		t.Errorf("gap = %+v", gap)
	}
}

func TestBuild_OverlapIsGap(t *testing.T) {
	m := manifest(200, chunk("a_1_100", 1, 100), chunk("b_100_200", 100, 200))
	_, err := Build(m, types.LocalState{}, dirScratch("/s"))

	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("expected *GapError, got %v", err)
	}
}

func TestBuild_GapAtArchiveSeam(t *testing.T) {
	// The manifest starts past the archive's resume point.
	m := manifest(300, chunk("m_201_300", 201, 300))
	_, err := Build(m, types.LocalState{LastRecord: 150}, dirScratch("/s"))

	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("expected *GapError, got %T: %v", err, err)
	}
	if gap.Prev != "" || gap.Expected != 151 || gap.Got != 201 {
		t.Errorf("gap = %+v", gap)
	}
}

func TestBuild_LatestBeyondChunks(t *testing.T) {
	// lastDownloaded advertises more than the chunks cover: the plan
	// fetches what exists.
	m := manifest(500, chunk("a_1_100", 1, 100))
	p, err := Build(m, types.LocalState{LastRecord: 50}, dirScratch("/s"))
	if err != nil {
		t.Fatal(err)
	}
	if got := names(p); !equal(got, []string{"a_1_100"}) {
		t.Errorf("selected %v", got)
	}
}

func TestCheckContiguous(t *testing.T) {
	if err := CheckContiguous(nil); err != nil {
		t.Errorf("nil: %v", err)
	}
	if err := CheckContiguous([]types.ChunkDescriptor{chunk("a_5_9", 5, 9)}); err != nil {
		t.Errorf("single: %v", err)
	}
}
