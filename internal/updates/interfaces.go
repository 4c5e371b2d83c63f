package updates

import (
	"context"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/download"
)

// Inventory lists the installed applications.
type Inventory interface {
	ListInstalledApps(ctx context.Context, exclude []string) ([]api.InstalledApp, error)
}

// Preferences gives access to the persisted user preferences.
type Preferences interface {
	IgnoredApps() []string
	IgnoredVersions() []int64
	EnabledSources() []api.SourceID
	ToggleIgnoredApp(packageName string) (bool, error)
	ToggleIgnoredVersion(id int64) (bool, error)
	RecordCheck(when time.Time, updates int) error
}

// Notifier receives the update count (badge) and download progress.
type Notifier interface {
	OnUpdatesAvailable(count int)
	OnDownloadProgress(id int64, percent int)
}

// Downloader fetches update artifacts.
type Downloader interface {
	Download(ctx context.Context, id int64, link api.Link, progressFunc func(download.Progress)) (string, error)
	Remove(id int64) error
}

// Orchestrator drives installs and enforces that only one runs at a time.
type Orchestrator interface {
	Start(ctx context.Context, id int64, strategy api.InstallStrategy) (context.Context, error)
	Run(ctx context.Context, id int64, packageName string, path string) error
	Fail(id int64, err error)
	Cancel(id int64) bool
	Finish(id int64)
	State(id int64) api.InstallState
}

// Recorder receives metrics.
type Recorder interface {
	ObserveLookup(source api.SourceID, outcome string, duration time.Duration)
	ObserveDownload(outcome string, bytes int64, duration time.Duration)
	ObserveInstall(strategy api.InstallStrategy, outcome string)
	SetUpdatesAvailable(count int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLookup(api.SourceID, string, time.Duration) {}
func (nopRecorder) ObserveDownload(string, int64, time.Duration)      {}
func (nopRecorder) ObserveInstall(api.InstallStrategy, string)        {}
func (nopRecorder) SetUpdatesAvailable(int)                           {}

type nopNotifier struct{}

func (nopNotifier) OnUpdatesAvailable(int)        {}
func (nopNotifier) OnDownloadProgress(int64, int) {}
