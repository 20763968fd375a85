package ledger

import (
	"fmt"

	"github.com/justapithecus/ndarchive/fetch"
)

// StorageError wraps a ledger storage failure with its classification.
// Kind is one of the fetch sentinels (fetch.ErrNotFound, fetch.ErrAuth, ...).
type StorageError struct {
	Kind error
	// Op is the operation that failed ("init", "write", "read", "list").
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return e.Kind == target
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: fetch.Classify(err), Op: op, Err: err}
}
