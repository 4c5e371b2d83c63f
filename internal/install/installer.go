package install

import (
	"context"
	"regexp"
	"strings"

	"github.com/apkupdater/apkupdaterd/api"
)

// Installer represents one way of handing an artifact to the package manager.
type Installer interface {
	Name() api.InstallStrategy

	// CheckPermission returns a *RejectedError when the strategy can't currently be used.
	CheckPermission(ctx context.Context) error

	// Install blocks until the package manager reports a result.
	Install(ctx context.Context, packageName string, path string) error
}

var failureRegexp = regexp.MustCompile(`Failure \[([A-Z0-9_]+)`)

// abortedReason is what the package manager reports when a pending install gets abandoned.
const abortedReason = "INSTALL_FAILED_ABORTED"

// resultError interprets package manager output, returning nil on success.
func resultError(output string, err error) error {
	text := output
	if err != nil {
		text += "\n" + err.Error()
	}

	match := failureRegexp.FindStringSubmatch(text)
	if match != nil {
		if match[1] == abortedReason {
			return ErrInstallCancelled
		}

		return &FailedError{Reason: match[1], Err: err}
	}

	if err != nil {
		return &FailedError{Reason: "UNKNOWN", Err: err}
	}

	if strings.Contains(text, "Failure") {
		return &FailedError{Reason: strings.TrimSpace(text)}
	}

	return nil
}
