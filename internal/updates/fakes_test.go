package updates_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/download"
	"github.com/apkupdater/apkupdaterd/internal/install"
	"github.com/apkupdater/apkupdaterd/internal/providers"
	"github.com/apkupdater/apkupdaterd/internal/state"
)

// fakeSource answers lookups from a package to version code map.
type fakeSource struct {
	id      api.SourceID
	delay   time.Duration
	fail    bool
	block   bool
	results map[string]int64

	mu    sync.Mutex
	calls map[string]int
}

func newFakeSource(id api.SourceID, results map[string]int64) *fakeSource {
	return &fakeSource{id: id, results: results, calls: map[string]int{}}
}

func (f *fakeSource) ID() api.SourceID {
	return f.id
}

func (*fakeSource) ClearCache(_ context.Context) error {
	return nil
}

func (f *fakeSource) Calls(packageName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[packageName]
}

func (f *fakeSource) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	f.mu.Lock()
	f.calls[app.PackageName]++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()

		return nil, &providers.LookupError{Source: f.id, Package: app.PackageName, Err: ctx.Err()}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &providers.LookupError{Source: f.id, Package: app.PackageName, Err: ctx.Err()}
		}
	}

	if f.fail {
		return nil, &providers.LookupError{Source: f.id, Package: app.PackageName, Err: errors.New("boom")}
	}

	versionCode, ok := f.results[app.PackageName]
	if !ok {
		return nil, providers.ErrNoUpdateAvailable
	}

	return &api.UpdateCandidate{
		Source:         f.id,
		Name:           app.Name,
		PackageName:    app.PackageName,
		VersionName:    strconv.FormatInt(versionCode, 10),
		OldVersionName: app.VersionName,
		VersionCode:    versionCode,
		OldVersionCode: app.VersionCode,
		Link:           api.Link{Type: api.LinkTypeURL, URL: "https://" + string(f.id) + "/" + app.PackageName + ".apk"},
	}, nil
}

// fakeInventory returns a fixed list of applications.
type fakeInventory struct {
	apps []api.InstalledApp
	err  error
}

func (f *fakeInventory) ListInstalledApps(_ context.Context, exclude []string) ([]api.InstalledApp, error) {
	if f.err != nil {
		return nil, f.err
	}

	apps := []api.InstalledApp{}

	for _, app := range f.apps {
		skip := false

		for _, pkg := range exclude {
			if pkg == app.PackageName {
				skip = true
			}
		}

		if !skip {
			apps = append(apps, app)
		}
	}

	return apps, nil
}

// fakeDownloader writes a small file, or blocks until cancelled when gate is set.
type fakeDownloader struct {
	dir   string
	gate  chan struct{}
	fail  bool
	calls atomic.Int32
}

func (f *fakeDownloader) Download(ctx context.Context, id int64, _ api.Link, progressFunc func(download.Progress)) (string, error) {
	f.calls.Add(1)

	progressFunc(download.Progress{BytesWritten: 50, TotalBytes: 100})

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", download.ErrDownloadCancelled
		}
	}

	if f.fail {
		return "", &download.Error{ID: id, Err: errors.New("broken")}
	}

	progressFunc(download.Progress{BytesWritten: 100, TotalBytes: 100})

	path := filepath.Join(f.dir, strconv.FormatInt(id, 10)+".apk")

	err := os.WriteFile(path, []byte("apk"), 0o600)
	if err != nil {
		return "", err
	}

	return path, nil
}

func (f *fakeDownloader) Remove(id int64) error {
	return os.Remove(filepath.Join(f.dir, strconv.FormatInt(id, 10)+".apk"))
}

// fakeInstaller records installed packages.
type fakeInstaller struct {
	permitted bool
	result    error

	mu        sync.Mutex
	installed []string
}

func (*fakeInstaller) Name() api.InstallStrategy {
	return api.InstallStrategySession
}

func (f *fakeInstaller) CheckPermission(_ context.Context) error {
	if !f.permitted {
		return &install.RejectedError{Strategy: api.InstallStrategySession, Reason: "denied"}
	}

	return nil
}

func (f *fakeInstaller) Install(_ context.Context, packageName string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.result != nil {
		return f.result
	}

	f.installed = append(f.installed, packageName)

	return nil
}

// fakeNotifier records the update counts it receives.
type fakeNotifier struct {
	mu       sync.Mutex
	counts   []int
	progress []int
}

func (f *fakeNotifier) OnUpdatesAvailable(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts = append(f.counts, count)
}

func (f *fakeNotifier) OnDownloadProgress(_ int64, percent int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.progress = append(f.progress, percent)
}

func (f *fakeNotifier) lastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.counts) == 0 {
		return -1
	}

	return f.counts[len(f.counts)-1]
}

func newPreferences(t *testing.T) *state.State {
	t.Helper()

	s, err := state.LoadOrCreate(filepath.Join(t.TempDir(), "state.txt"))
	require.NoError(t, err)

	return s
}
