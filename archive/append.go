package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/types"
)

// Append grows the archive with each item's uncompressed file, in slice
// order, removing each source once consumed. needsNewline writes a
// separator first for an archive whose final record is unterminated.
//
// Append is not transactional: on failure the archive holds a valid prefix
// plus possibly a partial chunk, which Repair can trim on the next run.
func Append(path string, items []types.WorkItem, needsNewline bool) (int64, error) {
	dst, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, &AppendError{Err: err}
	}

	var written int64
	if needsNewline {
		if _, err := dst.Write([]byte{'\n'}); err != nil {
			iox.DiscardClose(dst)
			return 0, &AppendError{Err: err}
		}
		written++
	}

	for _, item := range items {
		n, err := appendOne(dst, item)
		written += n
		if err != nil {
			iox.DiscardClose(dst)
			return written, &AppendError{Chunk: item.Descriptor.Name, Err: err}
		}
	}

	if err := iox.SyncClose(dst); err != nil {
		return written, &AppendError{Err: err}
	}
	return written, nil
}

func appendOne(dst *os.File, item types.WorkItem) (int64, error) {
	src, err := os.Open(item.UncompressedPath)
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(src)

	n, err := io.Copy(dst, src)
	if err != nil {
		return n, err
	}

	// A chunk without a trailing newline would fuse with the next chunk's first record.
	if n > 0 {
		var last [1]byte
		if _, err := src.ReadAt(last[:], n-1); err != nil {
			return n, fmt.Errorf("read chunk tail: %w", err)
		}
		if last[0] != '\n' {
			if _, err := dst.Write([]byte{'\n'}); err != nil {
				return n, err
			}
			n++
		}
	}

	if err := iox.RemoveIfExists(item.UncompressedPath); err != nil {
		return n, fmt.Errorf("remove consumed chunk: %w", err)
	}
	return n, nil
}
