package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"

	"github.com/apkupdater/apkupdaterd/api"
)

// Session is a pending package manager install session.
type Session interface {
	Write(ctx context.Context, name string, r io.Reader, size int64) error

	// Commit blocks until the package manager has processed the session.
	Commit(ctx context.Context) error
	Abandon(ctx context.Context) error
}

// SessionBackend creates package manager install sessions.
type SessionBackend interface {
	CheckPermission(ctx context.Context) error
	Create(ctx context.Context, packageName string, size int64) (Session, error)
}

// SessionInstaller installs through a package manager session, without elevated privileges.
type SessionInstaller struct {
	Backend SessionBackend
}

// Name returns the strategy implemented.
func (*SessionInstaller) Name() api.InstallStrategy {
	return api.InstallStrategySession
}

// CheckPermission defers to the backend.
func (s *SessionInstaller) CheckPermission(ctx context.Context) error {
	return s.Backend.CheckPermission(ctx)
}

// Install streams the artifact into a new session and waits for the package manager's verdict.
func (s *SessionInstaller) Install(ctx context.Context, packageName string, path string) error {
	// #nosec G304
	fd, err := os.Open(path)
	if err != nil {
		return &FailedError{Reason: "INVALID_ARTIFACT", Err: err}
	}

	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return &FailedError{Reason: "INVALID_ARTIFACT", Err: err}
	}

	session, err := s.Backend.Create(ctx, packageName, info.Size())
	if err != nil {
		return resultError("", err)
	}

	err = session.Write(ctx, "base.apk", fd, info.Size())
	if err != nil {
		s.abandon(ctx, session)

		if ctx.Err() != nil {
			return ErrInstallCancelled
		}

		return resultError("", err)
	}

	done := make(chan error, 1)

	go func() {
		done <- session.Commit(ctx)
	}()

	select {
	case err = <-done:
		if ctx.Err() != nil {
			return ErrInstallCancelled
		}

		return resultError("", err)
	case <-ctx.Done():
		s.abandon(ctx, session)

		return ErrInstallCancelled
	}
}

func (*SessionInstaller) abandon(ctx context.Context, session Session) {
	err := session.Abandon(context.WithoutCancel(ctx))
	if err != nil {
		slog.WarnContext(ctx, "Failed to abandon install session", "err", err)
	}
}

var sessionIDRegexp = regexp.MustCompile(`\[(\d+)\]`)

// PMBackend drives Android's "pm install-create/install-write/install-commit" commands.
type PMBackend struct {
	Command          string
	AppOpsCommand    string
	InstallerPackage string
}

// NewPMBackend returns a pm based session backend.
func NewPMBackend(installerPackage string) *PMBackend {
	return &PMBackend{Command: "pm", AppOpsCommand: "appops", InstallerPackage: installerPackage}
}

// CheckPermission verifies pm is available and, if an installer package is configured,
// that it holds the REQUEST_INSTALL_PACKAGES app op.
func (b *PMBackend) CheckPermission(ctx context.Context) error {
	_, err := exec.LookPath(b.Command)
	if err != nil {
		return &RejectedError{Strategy: api.InstallStrategySession, Reason: err.Error()}
	}

	if b.InstallerPackage == "" {
		return nil
	}

	output, err := subprocess.RunCommandContext(ctx, b.AppOpsCommand, "get", b.InstallerPackage, "REQUEST_INSTALL_PACKAGES")
	if err != nil {
		return &RejectedError{Strategy: api.InstallStrategySession, Reason: err.Error()}
	}

	if !strings.Contains(output, "REQUEST_INSTALL_PACKAGES: allow") {
		return &RejectedError{Strategy: api.InstallStrategySession, Reason: b.InstallerPackage + " isn't allowed to install packages"}
	}

	return nil
}

// Create opens a new install session.
func (b *PMBackend) Create(ctx context.Context, packageName string, size int64) (Session, error) {
	args := []string{"install-create", "-r", "-S", strconv.FormatInt(size, 10)}
	if b.InstallerPackage != "" {
		args = append(args, "-i", b.InstallerPackage)
	}

	output, err := subprocess.RunCommandContext(ctx, b.Command, args...)
	if err != nil {
		return nil, err
	}

	match := sessionIDRegexp.FindStringSubmatch(output)
	if match == nil {
		return nil, fmt.Errorf("unexpected install-create output %q", strings.TrimSpace(output))
	}

	slog.DebugContext(ctx, "Created install session", "package", packageName, "session", match[1])

	return &pmSession{backend: b, id: match[1]}, nil
}

type pmSession struct {
	backend *PMBackend
	id      string
}

func (s *pmSession) Write(ctx context.Context, name string, r io.Reader, size int64) error {
	var stdout bytes.Buffer

	err := subprocess.RunCommandWithFds(ctx, r, &stdout, s.backend.Command, "install-write", "-S", strconv.FormatInt(size, 10), s.id, name, "-")
	if err != nil {
		return err
	}

	if !strings.HasPrefix(strings.TrimSpace(stdout.String()), "Success") {
		return errors.New(strings.TrimSpace(stdout.String()))
	}

	return nil
}

func (s *pmSession) Commit(ctx context.Context) error {
	output, err := subprocess.RunCommandContext(ctx, s.backend.Command, "install-commit", s.id)
	if err != nil {
		return err
	}

	if !strings.HasPrefix(strings.TrimSpace(output), "Success") {
		return errors.New(strings.TrimSpace(output))
	}

	return nil
}

func (s *pmSession) Abandon(ctx context.Context) error {
	_, err := subprocess.RunCommandContext(ctx, s.backend.Command, "install-abandon", s.id)

	return err
}
