package locate

import (
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/ndarchive/iox"
)

// Trim writes bytes [offset, EOF) of src to a new file at dst and returns the
// number of bytes written. The copy is a single bulk transfer; on Linux
// (*os.File).ReadFrom turns it into copy_file_range. src is left in place.
func Trim(src, dst string, offset int64) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open chunk: %w", err)
	}
	defer iox.DiscardClose(in)

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat chunk: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		return 0, fmt.Errorf("trim offset %d outside chunk of %d bytes", offset, info.Size())
	}
	if _, err := in.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek chunk: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create trimmed chunk: %w", err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		iox.DiscardClose(out)
		_ = iox.RemoveIfExists(dst)
		return n, fmt.Errorf("copy trimmed chunk: %w", err)
	}
	if err := iox.SyncClose(out); err != nil {
		_ = iox.RemoveIfExists(dst)
		return n, fmt.Errorf("sync trimmed chunk: %w", err)
	}
	if want := info.Size() - offset; n != want {
		_ = iox.RemoveIfExists(dst)
		return n, fmt.Errorf("trimmed chunk is %d bytes, want %d", n, want)
	}
	return n, nil
}
