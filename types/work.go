package types

// WorkItem pairs a selected chunk with its run-scoped temporary files.
// CompressedPath is populated by download; UncompressedPath by decompression
// (and replaced by the trimmed copy when the chunk is trimmed).
type WorkItem struct {
	Descriptor       ChunkDescriptor
	CompressedPath   string
	UncompressedPath string

	// CompressedBytes is the downloaded size.
	CompressedBytes int64
	// UncompressedBytes is the decompressed (or trimmed) size.
	UncompressedBytes int64
	// Digest is the BLAKE3 hex digest of the downloaded bytes.
	Digest string
}
