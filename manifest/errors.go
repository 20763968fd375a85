package manifest

import "fmt"

// FetchError reports that the manifest could not be retrieved.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch manifest %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a manifest body that is not a valid chunk manifest.
type ParseError struct {
	// Field locates the problem, e.g. "monthly[3]". Empty for whole-document errors.
	Field string
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	msg := "invalid manifest"
	if e.Field != "" {
		msg += " at " + e.Field
	}
	msg += ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
