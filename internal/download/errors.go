package download

import (
	"errors"
	"fmt"
)

// ErrDownloadFailed is matched by every *Error.
var ErrDownloadFailed = errors.New("download failed")

// ErrDownloadCancelled is returned when the download's context is cancelled.
var ErrDownloadCancelled = errors.New("download cancelled")

// Error describes a failed download.
type Error struct {
	ID  int64
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download of update %d from %q failed: %v", e.ID, e.URL, e.Err)
}

// Unwrap allows matching both ErrDownloadFailed and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{ErrDownloadFailed, e.Err}
}
