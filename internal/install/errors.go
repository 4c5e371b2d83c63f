package install

import (
	"errors"
	"fmt"

	"github.com/apkupdater/apkupdaterd/api"
)

var (
	// ErrInstallRejected is matched by every *RejectedError.
	ErrInstallRejected = errors.New("install rejected")

	// ErrInstallFailed is matched by every *FailedError.
	ErrInstallFailed = errors.New("install failed")

	// ErrInstallCancelled is returned when an install was cancelled before completing.
	ErrInstallCancelled = errors.New("install cancelled")

	// ErrInstallInProgress is returned when trying to start an install while another one is active.
	ErrInstallInProgress = errors.New("another install is already in progress")

	// ErrNotInstalling is returned when acting on an update that isn't being installed.
	ErrNotInstalling = errors.New("update isn't being installed")
)

// RejectedError is returned when the install strategy lacks the required permission.
type RejectedError struct {
	Strategy api.InstallStrategy
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s install rejected: %s", e.Strategy, e.Reason)
}

// Unwrap allows matching ErrInstallRejected.
func (*RejectedError) Unwrap() error {
	return ErrInstallRejected
}

// FailedError is returned when the package manager refused the artifact.
type FailedError struct {
	Reason string
	Err    error
}

func (e *FailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("install failed (%s): %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("install failed (%s)", e.Reason)
}

// Unwrap allows matching both ErrInstallFailed and the underlying cause.
func (e *FailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInstallFailed}
	}

	return []error{ErrInstallFailed, e.Err}
}
