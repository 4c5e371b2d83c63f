package updates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/download"
	"github.com/apkupdater/apkupdaterd/internal/install"
	"github.com/apkupdater/apkupdaterd/internal/providers"
	"github.com/apkupdater/apkupdaterd/internal/state"
	"github.com/apkupdater/apkupdaterd/internal/updates"
)

type testManager struct {
	*updates.Manager

	prefs      *state.State
	inventory  *fakeInventory
	downloader *fakeDownloader
	installer  *fakeInstaller
	notifier   *fakeNotifier
}

func newTestManager(t *testing.T, apps []api.InstalledApp, sources ...providers.Source) *testManager {
	t.Helper()

	tm := &testManager{
		prefs:      newPreferences(t),
		inventory:  &fakeInventory{apps: apps},
		downloader: &fakeDownloader{dir: t.TempDir()},
		installer:  &fakeInstaller{permitted: true},
		notifier:   &fakeNotifier{},
	}

	tm.Manager = updates.NewManager(updates.Config{
		Inventory:    tm.inventory,
		Preferences:  tm.prefs,
		Sources:      sources,
		Downloader:   tm.downloader,
		Orchestrator: install.NewOrchestrator(tm.installer),
		Notifier:     tm.notifier,
	})

	return tm
}

func waitInstalling(t *testing.T, m *testManager, id int64) {
	t.Helper()

	require.Eventually(t, func() bool {
		update, err := m.Update(id)

		return err == nil && update.IsInstalling && update.Progress == 50
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManagerRefresh(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", Name: "ABC", VersionName: "10", VersionCode: 10}}

	m := newTestManager(t, apps,
		newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12}),
		newFakeSource(api.SourceGitHub, map[string]int64{"a.b.c": 11}),
	)

	require.Empty(t, m.Updates())

	result, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 1)

	update := result[0]
	require.Equal(t, "a.b.c", update.PackageName)
	require.Equal(t, int64(12), update.VersionCode)
	require.Equal(t, 0, update.Progress)
	require.False(t, update.IsInstalling)
	require.Equal(t, result, m.Updates())
	require.Equal(t, 1, m.notifier.lastCount())

	got, err := m.Update(update.ID)
	require.NoError(t, err)
	require.Equal(t, update, got)

	_, err = m.Update(42)
	require.ErrorIs(t, err, updates.ErrUpdateNotFound)
}

func TestManagerRefreshInventoryFailure(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil, newFakeSource(api.SourceMirror, nil))
	m.inventory.err = errors.New("no package manager")

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
}

func TestManagerSourcePreferences(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", VersionCode: 10}}

	mirror := newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12})
	github := newFakeSource(api.SourceGitHub, map[string]int64{"a.b.c": 11})

	m := newTestManager(t, apps, mirror, github)

	prefs := m.prefs.GetPreferences()
	prefs.EnabledSources = []api.SourceID{api.SourceGitHub}
	require.NoError(t, m.prefs.SetPreferences(prefs))

	result, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, api.SourceGitHub, result[0].Source)
	require.Equal(t, 0, mirror.Calls("a.b.c"))

	require.Equal(t, []api.Source{
		{ID: api.SourceGitHub, Priority: 0, Enabled: true},
		{ID: api.SourceMirror, Priority: -1, Enabled: false},
	}, m.Sources())
}

func TestManagerIgnoreVersion(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{
		{PackageName: "a.b.c", VersionCode: 10},
		{PackageName: "d.e.f", VersionCode: 3},
	}

	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12, "d.e.f": 4}))

	result, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)

	id := updates.UpdateID("a.b.c", 12)

	ignored, err := m.IgnoreVersion(id)
	require.NoError(t, err)
	require.True(t, ignored)
	require.Len(t, m.Updates(), 1)
	require.Equal(t, 1, m.notifier.lastCount())

	result, err = m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "d.e.f", result[0].PackageName)

	// Un-ignoring brings it back right away.
	ignored, err = m.IgnoreVersion(id)
	require.NoError(t, err)
	require.False(t, ignored)
	require.Len(t, m.Updates(), 2)
}

func TestManagerIgnoreApp(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{
		{PackageName: "a.b.c", Name: "ABC", VersionCode: 10},
		{PackageName: "d.e.f", Name: "DEF", VersionCode: 3},
	}

	source := newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12, "d.e.f": 4})
	m := newTestManager(t, apps, source)

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	ignored, err := m.IgnoreApp("a.b.c")
	require.NoError(t, err)
	require.True(t, ignored)
	require.Len(t, m.Updates(), 1)

	_, err = m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Updates(), 1)
	require.Equal(t, 1, source.Calls("a.b.c"))

	listed, err := m.Apps(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "a.b.c", listed[0].PackageName)
	require.True(t, listed[0].Ignored)
	require.False(t, listed[1].Ignored)

	ignored, err = m.IgnoreApp("a.b.c")
	require.NoError(t, err)
	require.False(t, ignored)

	_, err = m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Updates(), 2)
}

func TestManagerScheduledCheck(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", VersionCode: 10}}
	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12}))

	require.NoError(t, m.RunScheduledCheck(context.Background()))

	check := m.prefs.LastCheck()
	require.NotEmpty(t, check.LastCheck)
	require.Equal(t, 1, check.Updates)
}

func TestManagerInstall(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", VersionCode: 10}}
	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12}))

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	id := updates.UpdateID("a.b.c", 12)

	done, err := m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.Empty(t, m.Updates())
	require.Equal(t, []string{"a.b.c"}, m.installer.installed)
	require.Equal(t, api.InstallStateIdle, m.InstallState(id))
	require.Equal(t, 0, m.notifier.lastCount())

	_, err = m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.ErrorIs(t, err, updates.ErrUpdateNotFound)
}

func TestManagerInstallExclusive(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{
		{PackageName: "a.b.c", VersionCode: 10},
		{PackageName: "d.e.f", VersionCode: 3},
	}

	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12, "d.e.f": 4}))
	m.downloader.gate = make(chan struct{})

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	first := updates.UpdateID("a.b.c", 12)
	second := updates.UpdateID("d.e.f", 4)

	done, err := m.Install(context.Background(), first, api.InstallStrategySession)
	require.NoError(t, err)

	waitInstalling(t, m, first)
	require.Equal(t, api.InstallStateInstalling, m.InstallState(first))

	_, err = m.Install(context.Background(), second, api.InstallStrategySession)
	require.ErrorIs(t, err, install.ErrInstallInProgress)
	require.Equal(t, api.InstallStateIdle, m.InstallState(second))

	// Refreshing in the middle of an install keeps its flags.
	_, err = m.Refresh(context.Background())
	require.NoError(t, err)

	update, err := m.Update(first)
	require.NoError(t, err)
	require.True(t, update.IsInstalling)
	require.Equal(t, 50, update.Progress)

	close(m.downloader.gate)
	require.NoError(t, <-done)

	done, err = m.Install(context.Background(), second, api.InstallStrategySession)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Empty(t, m.Updates())
}

func TestManagerRefreshDuringInstall(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{
		{PackageName: "a.a", VersionCode: 1},
		{PackageName: "z.z", VersionCode: 1},
	}

	mirror := newFakeSource(api.SourceMirror, map[string]int64{"z.z": 2})
	github := newFakeSource(api.SourceGitHub, map[string]int64{"a.a": 2})
	github.delay = 200 * time.Millisecond

	m := newTestManager(t, apps, mirror, github)
	m.downloader.gate = make(chan struct{})

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Updates(), 2)

	id := updates.UpdateID("a.a", 2)

	done, err := m.Install(context.Background(), id, api.InstallStrategySession)
	require.NoError(t, err)

	waitInstalling(t, m, id)

	refreshed := make(chan error, 1)

	go func() {
		_, err := m.Refresh(context.Background())
		refreshed <- err
	}()

	// Partial results from the fast source don't drop or reset the row being installed.
	for range 10 {
		update, err := m.Update(id)
		require.NoError(t, err)
		require.True(t, update.IsInstalling)
		require.Equal(t, 50, update.Progress)

		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, <-refreshed)

	update, err := m.Update(id)
	require.NoError(t, err)
	require.True(t, update.IsInstalling)
	require.Equal(t, 50, update.Progress)
	require.Equal(t, api.InstallStateInstalling, m.InstallState(id))

	// The row stays listed while installing even once no source reports it.
	github.results = map[string]int64{}

	_, err = m.Refresh(context.Background())
	require.NoError(t, err)

	update, err = m.Update(id)
	require.NoError(t, err)
	require.True(t, update.IsInstalling)

	close(m.downloader.gate)
	require.NoError(t, <-done)

	_, err = m.Update(id)
	require.ErrorIs(t, err, updates.ErrUpdateNotFound)

	_, err = m.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Updates(), 1)
}

func TestManagerInstallCancel(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", VersionCode: 10}}
	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12}))
	m.downloader.gate = make(chan struct{})

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	id := updates.UpdateID("a.b.c", 12)

	require.ErrorIs(t, m.CancelInstall(id), install.ErrNotInstalling)

	done, err := m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.NoError(t, err)

	waitInstalling(t, m, id)

	require.NoError(t, m.CancelInstall(id))
	require.ErrorIs(t, <-done, download.ErrDownloadCancelled)

	update, err := m.Update(id)
	require.NoError(t, err)
	require.False(t, update.IsInstalling)
	require.Equal(t, 0, update.Progress)
	require.Equal(t, api.InstallStateCancelled, m.InstallState(id))

	// A cancelled install can be retried.
	close(m.downloader.gate)

	done, err = m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Empty(t, m.Updates())
}

func TestManagerInstallRejected(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", VersionCode: 10}}
	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12}))
	m.installer.permitted = false

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	id := updates.UpdateID("a.b.c", 12)

	_, err = m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.ErrorIs(t, err, install.ErrInstallRejected)

	var rejected *install.RejectedError
	require.ErrorAs(t, err, &rejected)

	update, err := m.Update(id)
	require.NoError(t, err)
	require.False(t, update.IsInstalling)
	require.Equal(t, api.InstallStateIdle, m.InstallState(id))
	require.Equal(t, int32(0), m.downloader.calls.Load())

	_, err = m.Install(context.Background(), id, api.InstallStrategyElevated)
	require.ErrorIs(t, err, install.ErrInstallRejected)
}

func TestManagerInstallFailures(t *testing.T) {
	t.Parallel()

	apps := []api.InstalledApp{{PackageName: "a.b.c", VersionCode: 10}}
	m := newTestManager(t, apps, newFakeSource(api.SourceMirror, map[string]int64{"a.b.c": 12}))

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	id := updates.UpdateID("a.b.c", 12)

	m.downloader.fail = true

	done, err := m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.ErrorIs(t, <-done, download.ErrDownloadFailed)
	require.Equal(t, api.InstallStateFailed, m.InstallState(id))
	require.Len(t, m.Updates(), 1)

	m.downloader.fail = false
	m.installer.result = &install.FailedError{Reason: "INSTALL_FAILED_UPDATE_INCOMPATIBLE"}

	done, err = m.Install(context.Background(), id, api.InstallStrategyAuto)
	require.NoError(t, err)
	require.ErrorIs(t, <-done, install.ErrInstallFailed)
	require.Equal(t, api.InstallStateFailed, m.InstallState(id))

	update, err := m.Update(id)
	require.NoError(t, err)
	require.False(t, update.IsInstalling)
}
