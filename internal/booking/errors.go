package booking

import (
	"errors"
	"fmt"
)

// ErrTokenMissing means the anti-forgery token was absent from the final
// form page. This is the expected outcome when the selected slots were taken
// between discovery and submission, not a bug.
var ErrTokenMissing = errors.New("anti-forgery token not found")

// FetchError is a network or HTTP status failure reaching the booking site.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: http %d", e.Op, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError means the site responded to the final POST with something
// other than the confirmation page.
type SubmissionError struct {
	Status  int
	Snippet string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected: http %d: %s", e.Status, e.Snippet)
}
