package install_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/install"
)

type fakeInstaller struct {
	name      api.InstallStrategy
	permitted bool
	install   func(ctx context.Context) error
}

func (f *fakeInstaller) Name() api.InstallStrategy {
	return f.name
}

func (f *fakeInstaller) CheckPermission(_ context.Context) error {
	if !f.permitted {
		return &install.RejectedError{Strategy: f.name, Reason: "not permitted"}
	}

	return nil
}

func (f *fakeInstaller) Install(ctx context.Context, _ string, _ string) error {
	if f.install == nil {
		return nil
	}

	return f.install(ctx)
}

func TestOrchestratorExclusivity(t *testing.T) {
	t.Parallel()

	o := install.NewOrchestrator(&fakeInstaller{name: api.InstallStrategySession, permitted: true})

	_, err := o.Start(context.Background(), 1, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.Equal(t, api.InstallStateInstalling, o.State(1))

	_, err = o.Start(context.Background(), 2, api.InstallStrategyAuto)
	require.ErrorIs(t, err, install.ErrInstallInProgress)
	require.Equal(t, api.InstallStateIdle, o.State(2))

	err = o.Run(context.Background(), 1, "org.example.app", "/tmp/1.apk")
	require.NoError(t, err)
	require.Equal(t, api.InstallStateCompleted, o.State(1))

	// Still held until finished.
	_, err = o.Start(context.Background(), 2, api.InstallStrategyAuto)
	require.ErrorIs(t, err, install.ErrInstallInProgress)

	o.Finish(1)

	_, active := o.Active()
	require.False(t, active)

	_, err = o.Start(context.Background(), 2, api.InstallStrategyAuto)
	require.NoError(t, err)
}

func TestOrchestratorRejected(t *testing.T) {
	t.Parallel()

	o := install.NewOrchestrator(
		&fakeInstaller{name: api.InstallStrategyElevated},
		&fakeInstaller{name: api.InstallStrategySession},
	)

	var rejected *install.RejectedError

	_, err := o.Start(context.Background(), 1, api.InstallStrategyAuto)
	require.ErrorIs(t, err, install.ErrInstallRejected)
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, api.InstallStateIdle, o.State(1))

	// The slot was released.
	_, active := o.Active()
	require.False(t, active)

	_, err = o.Start(context.Background(), 1, api.InstallStrategyElevated)
	require.ErrorIs(t, err, install.ErrInstallRejected)

	o = install.NewOrchestrator()

	_, err = o.Start(context.Background(), 1, api.InstallStrategySession)
	require.ErrorIs(t, err, install.ErrInstallRejected)
}

func TestOrchestratorAutoPrefersElevated(t *testing.T) {
	t.Parallel()

	var used api.InstallStrategy

	elevated := &fakeInstaller{name: api.InstallStrategyElevated, install: func(_ context.Context) error {
		used = api.InstallStrategyElevated

		return nil
	}}

	session := &fakeInstaller{name: api.InstallStrategySession, permitted: true, install: func(_ context.Context) error {
		used = api.InstallStrategySession

		return nil
	}}

	o := install.NewOrchestrator(elevated, session)

	_, err := o.Start(context.Background(), 1, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), 1, "pkg", "path"))
	require.Equal(t, api.InstallStrategySession, used)
	o.Finish(1)

	elevated.permitted = true

	_, err = o.Start(context.Background(), 1, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background(), 1, "pkg", "path"))
	require.Equal(t, api.InstallStrategyElevated, used)
}

func TestOrchestratorFailure(t *testing.T) {
	t.Parallel()

	o := install.NewOrchestrator(&fakeInstaller{name: api.InstallStrategySession, permitted: true, install: func(_ context.Context) error {
		return &install.FailedError{Reason: "INSTALL_FAILED_VERSION_DOWNGRADE"}
	}})

	ctx, err := o.Start(context.Background(), 1, api.InstallStrategySession)
	require.NoError(t, err)

	var failed *install.FailedError

	err = o.Run(ctx, 1, "pkg", "path")
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "INSTALL_FAILED_VERSION_DOWNGRADE", failed.Reason)
	require.Equal(t, api.InstallStateFailed, o.State(1))

	// Failure releases the slot.
	_, err = o.Start(context.Background(), 2, api.InstallStrategySession)
	require.NoError(t, err)

	o.Fail(2, errors.New("download broke"))
	require.Equal(t, api.InstallStateFailed, o.State(2))

	_, active := o.Active()
	require.False(t, active)

	err = o.Run(context.Background(), 2, "pkg", "path")
	require.ErrorIs(t, err, install.ErrNotInstalling)
}

func TestOrchestratorCancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})

	o := install.NewOrchestrator(&fakeInstaller{name: api.InstallStrategySession, permitted: true, install: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()

		return install.ErrInstallCancelled
	}})

	require.False(t, o.Cancel(1))

	ctx, err := o.Start(context.Background(), 1, api.InstallStrategySession)
	require.NoError(t, err)

	result := make(chan error, 1)

	go func() {
		result <- o.Run(ctx, 1, "pkg", "path")
	}()

	<-started
	require.True(t, o.Cancel(1))
	require.ErrorIs(t, <-result, install.ErrInstallCancelled)
	require.Equal(t, api.InstallStateCancelled, o.State(1))
	require.False(t, o.Cancel(1))

	// Retry is possible.
	_, err = o.Start(context.Background(), 1, api.InstallStrategySession)
	require.NoError(t, err)
}

func writeArtifact(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(path, []byte("apk"), 0o600))

	return path
}

func TestElevated(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t)

	installer := install.NewElevated("sh", []string{"-c", "test -f '{path}' && test '{package}' = org.example.app && echo Success"})
	require.Equal(t, api.InstallStrategyElevated, installer.Name())
	require.NoError(t, installer.CheckPermission(context.Background()))
	require.NoError(t, installer.Install(context.Background(), "org.example.app", path))

	var failed *install.FailedError

	installer = install.NewElevated("sh", []string{"-c", "echo 'Failure [INSTALL_FAILED_UPDATE_INCOMPATIBLE: signatures differ]'; exit 1"})
	err := installer.Install(context.Background(), "org.example.app", path)
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "INSTALL_FAILED_UPDATE_INCOMPATIBLE", failed.Reason)

	installer = install.NewElevated("sh", []string{"-c", "exit 3"})
	err = installer.Install(context.Background(), "org.example.app", path)
	require.ErrorIs(t, err, install.ErrInstallFailed)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	installer = install.NewElevated("sh", []string{"-c", "exec sleep 10"})
	err = installer.Install(ctx, "org.example.app", path)
	require.ErrorIs(t, err, install.ErrInstallCancelled)

	installer = install.NewElevated("definitely-not-a-real-command", nil)
	require.ErrorIs(t, installer.CheckPermission(context.Background()), install.ErrInstallRejected)
}

// fakePM writes a shell script standing in for pm, behaving according to the commit output.
func fakePM(t *testing.T, commit string) string {
	t.Helper()

	dir := t.TempDir()
	script := `#!/bin/sh
case "$1" in
  install-create) echo "Success: created install session [1234]" ;;
  install-write) cat > "` + dir + `/written"; echo "Success: streamed $3 bytes" ;;
  install-commit) ` + commit + ` ;;
  install-abandon) touch "` + dir + `/abandoned" ;;
esac
`
	path := filepath.Join(dir, "pm")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700)) //nolint:gosec

	return path
}

func TestSessionInstaller(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t)

	pm := fakePM(t, `echo Success`)
	backend := &install.PMBackend{Command: pm}
	installer := &install.SessionInstaller{Backend: backend}

	require.Equal(t, api.InstallStrategySession, installer.Name())
	require.NoError(t, installer.CheckPermission(context.Background()))
	require.NoError(t, installer.Install(context.Background(), "org.example.app", path))

	written, err := os.ReadFile(filepath.Join(filepath.Dir(pm), "written"))
	require.NoError(t, err)
	require.Equal(t, "apk", string(written))

	var failed *install.FailedError

	pm = fakePM(t, `echo "Failure [INSTALL_FAILED_INSUFFICIENT_STORAGE]"`)
	installer = &install.SessionInstaller{Backend: &install.PMBackend{Command: pm}}
	err = installer.Install(context.Background(), "org.example.app", path)
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "INSTALL_FAILED_INSUFFICIENT_STORAGE", failed.Reason)

	pm = fakePM(t, `echo "Failure [INSTALL_FAILED_ABORTED: User rejected permissions]"`)
	installer = &install.SessionInstaller{Backend: &install.PMBackend{Command: pm}}
	err = installer.Install(context.Background(), "org.example.app", path)
	require.ErrorIs(t, err, install.ErrInstallCancelled)

	// Cancelling while the commit is pending abandons the session.
	pm = fakePM(t, `exec sleep 10`)
	installer = &install.SessionInstaller{Backend: &install.PMBackend{Command: pm}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = installer.Install(ctx, "org.example.app", path)
	require.ErrorIs(t, err, install.ErrInstallCancelled)
	require.FileExists(t, filepath.Join(filepath.Dir(pm), "abandoned"))

	err = installer.Install(context.Background(), "org.example.app", filepath.Join(t.TempDir(), "missing.apk"))
	require.ErrorIs(t, err, install.ErrInstallFailed)
}

func TestPMBackendPermission(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	appops := filepath.Join(dir, "appops")
	require.NoError(t, os.WriteFile(appops, []byte("#!/bin/sh\n[ \"$2\" = org.allowed ] && echo 'REQUEST_INSTALL_PACKAGES: allow' || echo 'REQUEST_INSTALL_PACKAGES: default'\n"), 0o700)) //nolint:gosec

	backend := &install.PMBackend{Command: "sh", AppOpsCommand: appops, InstallerPackage: "org.allowed"}
	require.NoError(t, backend.CheckPermission(context.Background()))

	backend.InstallerPackage = "org.denied"
	require.ErrorIs(t, backend.CheckPermission(context.Background()), install.ErrInstallRejected)

	backend = install.NewPMBackend("")
	backend.Command = "definitely-not-a-real-command"
	require.ErrorIs(t, backend.CheckPermission(context.Background()), install.ErrInstallRejected)
}
