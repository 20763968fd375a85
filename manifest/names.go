package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholders recognized in URL templates.
const (
	RepoPlaceholder = "{repo}"
	NamePlaceholder = "{name}"
)

// DefaultRepo is the source repository used when neither the config file,
// NDARCHIVE_REPO nor --repo names one.
const DefaultRepo = "justapithecus/ndarchive-dump"

// Default URL templates for GitHub release hosting.
const (
	DefaultManifestURL   = "https://github.com/{repo}/releases/download/manifest/manifest.json"
	DefaultChunkTemplate = "https://github.com/{repo}/releases/download/{name}/{name}.ndjson.zst"
)

// rangeSuffix matches the trailing _<start>_<end> of a chunk name, with an
// optional extension after it.
var rangeSuffix = regexp.MustCompile(`_(\d+)_(\d+)(?:\..*)?$`)

// ParseRange extracts the inclusive record range encoded in a chunk name.
func ParseRange(name string) (start, end int64, err error) {
	m := rangeSuffix.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("chunk name %q has no _<start>_<end> suffix", name)
	}
	start, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("chunk name %q: start: %w", name, err)
	}
	end, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("chunk name %q: end: %w", name, err)
	}
	if start < 1 {
		return 0, 0, fmt.Errorf("chunk name %q: start must be >= 1", name)
	}
	if start > end {
		return 0, 0, fmt.Errorf("chunk name %q: start %d > end %d", name, start, end)
	}
	return start, end, nil
}

// Expand substitutes repo and name into template.
func Expand(template, repo, name string) string {
	return strings.NewReplacer(RepoPlaceholder, repo, NamePlaceholder, name).Replace(template)
}

// NeedsRepo reports whether template references the repository placeholder.
func NeedsRepo(template string) bool {
	return strings.Contains(template, RepoPlaceholder)
}
