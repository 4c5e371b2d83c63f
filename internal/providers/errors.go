package providers

import (
	"errors"
	"fmt"

	"github.com/apkupdater/apkupdaterd/api"
)

// ErrProviderUnavailable is returned when a source is rate limiting us.
var ErrProviderUnavailable = errors.New("provider isn't currently available")

// ErrNoUpdateAvailable is returned when the source doesn't know the application or has nothing newer.
var ErrNoUpdateAvailable = errors.New("no update available")

// ErrSourceLookupFailed is matched by every *LookupError.
var ErrSourceLookupFailed = errors.New("source lookup failed")

// LookupError describes a failed query against a source.
type LookupError struct {
	Source  api.SourceID
	Package string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup for %q failed: %v", e.Source, e.Package, e.Err)
}

// Unwrap allows matching both ErrSourceLookupFailed and the underlying cause.
func (e *LookupError) Unwrap() []error {
	return []error{ErrSourceLookupFailed, e.Err}
}

func lookupError(source api.SourceID, app api.InstalledApp, err error) error {
	if err == nil || errors.Is(err, ErrNoUpdateAvailable) {
		return err
	}

	return &LookupError{Source: source, Package: app.PackageName, Err: err}
}
