// Package record extracts the ordering field from NDJSON archive lines.
//
// Records are opaque JSON objects. The only field inspected is "num", which
// upstream producers encode as a numeric string; a bare JSON number is also
// accepted. Placeholder records ({"num", "exception", "timestamp"}) carry the
// same field and need no special handling.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
)

// Field is the ordering field name.
const Field = "num"

// ErrNoNum is returned when a line carries no usable ordering field.
var ErrNoNum = errors.New("record has no usable num field")

// Num extracts the ordering value from a single line without decoding the
// rest of the object. It does not check that the line is well-formed JSON;
// use NumStrict for lines that may be truncated.
func Num(line []byte) (int64, error) {
	value, dataType, _, err := jsonparser.Get(line, Field)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoNum, err)
	}

	switch dataType {
	case jsonparser.String, jsonparser.Number:
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrNoNum, value)
		}
		if n < 1 {
			return 0, fmt.Errorf("%w: %d is not positive", ErrNoNum, n)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unexpected %s value", ErrNoNum, dataType)
	}
}

// NumStrict is Num plus a full well-formedness check, so a line cut off after
// its num field is still rejected.
func NumStrict(line []byte) (int64, error) {
	if !json.Valid(line) {
		return 0, fmt.Errorf("%w: line is not a complete JSON value", ErrNoNum)
	}
	return Num(line)
}

// Placeholder is the record written for a number that no source could supply.
// It preserves numbering continuity.
type Placeholder struct {
	Num       string `json:"num"`
	Exception string `json:"exception"`
	Timestamp int64  `json:"timestamp"`
}

// IsPlaceholder reports whether the line is a placeholder record.
func IsPlaceholder(line []byte) bool {
	_, dataType, _, err := jsonparser.Get(line, "exception")
	return err == nil && dataType == jsonparser.String
}
