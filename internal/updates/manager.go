package updates

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/download"
	"github.com/apkupdater/apkupdaterd/internal/install"
	"github.com/apkupdater/apkupdaterd/internal/providers"
)

// ErrUpdateNotFound is returned when no listed update has the requested identifier.
var ErrUpdateNotFound = errors.New("update not found")

// Config holds the collaborators of a Manager.
type Config struct {
	Inventory    Inventory
	Preferences  Preferences
	Sources      []providers.Source
	Aggregator   *Aggregator
	Downloader   Downloader
	Orchestrator Orchestrator
	Notifier     Notifier
	Recorder     Recorder
}

// Manager owns the list of available updates and serializes every change made to it.
type Manager struct {
	inventory    Inventory
	prefs        Preferences
	sources      []providers.Source
	aggregator   *Aggregator
	downloader   Downloader
	orchestrator Orchestrator
	notifier     Notifier
	recorder     Recorder

	// refreshMu serializes refreshes, mu guards the collection itself.
	refreshMu sync.Mutex
	mu        sync.Mutex

	// raw is the last aggregated result before version ignores, so un-ignoring is immediate.
	raw        []api.AppUpdate
	collection *Collection
	snapshot   atomic.Pointer[[]api.AppUpdate]

	// active holds the rows of in-flight installs, reapplied on every rebuild.
	active map[int64]api.AppUpdate
}

// NewManager returns a new update manager.
func NewManager(config Config) *Manager {
	m := &Manager{
		inventory:    config.Inventory,
		prefs:        config.Preferences,
		sources:      config.Sources,
		aggregator:   config.Aggregator,
		downloader:   config.Downloader,
		orchestrator: config.Orchestrator,
		notifier:     config.Notifier,
		recorder:     config.Recorder,
		collection:   NewCollection(nil),
		active:       map[int64]api.AppUpdate{},
	}

	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}

	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}

	if m.aggregator == nil {
		m.aggregator = NewAggregator(AggregatorConfig{}, m.recorder)
	}

	m.storeSnapshot()

	return m
}

// Updates returns the current list of updates.
func (m *Manager) Updates() []api.AppUpdate {
	return slices.Clone(*m.snapshot.Load())
}

// Update returns a single update.
func (m *Manager) Update(id int64) (api.AppUpdate, error) {
	for _, update := range *m.snapshot.Load() {
		if update.ID == id {
			return update, nil
		}
	}

	return api.AppUpdate{}, ErrUpdateNotFound
}

// InstallState returns where the update is in the install process.
func (m *Manager) InstallState(id int64) api.InstallState {
	return m.orchestrator.State(id)
}

// enabledSources returns the loaded sources in the user's priority order.
func (m *Manager) enabledSources() []providers.Source {
	enabled := []providers.Source{}

	for _, id := range m.prefs.EnabledSources() {
		idx := slices.IndexFunc(m.sources, func(s providers.Source) bool { return s.ID() == id })
		if idx >= 0 {
			enabled = append(enabled, m.sources[idx])
		}
	}

	return enabled
}

// Sources describes every loaded source along with its priority, or -1 when disabled.
func (m *Manager) Sources() []api.Source {
	enabled := m.prefs.EnabledSources()
	sources := make([]api.Source, 0, len(m.sources))

	for _, source := range m.sources {
		priority := slices.Index(enabled, source.ID())

		sources = append(sources, api.Source{ID: source.ID(), Priority: priority, Enabled: priority >= 0})
	}

	slices.SortStableFunc(sources, func(a, b api.Source) int {
		switch {
		case a.Enabled && b.Enabled:
			return a.Priority - b.Priority
		case a.Enabled:
			return -1
		case b.Enabled:
			return 1
		default:
			return 0
		}
	})

	return sources
}

// ClearCaches drops any catalog data cached by the sources.
func (m *Manager) ClearCaches(ctx context.Context) error {
	var errs []error

	for _, source := range m.sources {
		err := source.ClearCache(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Refresh queries the enabled sources for all non-ignored installed applications and replaces
// the update list. Partial results are published as they arrive.
func (m *Manager) Refresh(ctx context.Context) ([]api.AppUpdate, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	ignoredApps := m.prefs.IgnoredApps()

	apps, err := m.inventory.ListInstalledApps(ctx, ignoredApps)
	if err != nil {
		return nil, fmt.Errorf("unable to list installed apps: %w", err)
	}

	sources := m.enabledSources()

	slog.InfoContext(ctx, "Checking for updates", "apps", len(apps), "sources", len(sources))

	m.aggregator.Aggregate(ctx, apps, sources, Filter{IgnoredApps: ignoredApps}, m.publish)

	updates := m.Updates()

	m.notifier.OnUpdatesAvailable(len(updates))
	m.recorder.SetUpdatesAvailable(len(updates))

	if ctx.Err() != nil {
		return updates, ctx.Err()
	}

	slog.InfoContext(ctx, "Update check completed", "updates", len(updates))

	return updates, nil
}

// RunScheduledCheck refreshes the list and records the check in the preferences.
func (m *Manager) RunScheduledCheck(ctx context.Context) error {
	updates, err := m.Refresh(ctx)
	if err != nil {
		return err
	}

	return m.prefs.RecordCheck(time.Now(), len(updates))
}

// publish replaces the aggregated result.
func (m *Manager) publish(raw []api.AppUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.raw = raw
	m.rebuild()
}

// rebuild recomputes the visible collection from the raw result. Must be called with mu held.
//
// Rows being installed keep their flags, and stay listed even when the raw result lost them.
func (m *Manager) rebuild() {
	active := slices.SortedFunc(maps.Values(m.active), func(a, b api.AppUpdate) int {
		return cmp.Compare(a.ID, b.ID)
	})

	collection := NewCollection(FilterIgnoredVersions(m.raw, m.prefs.IgnoredVersions()))
	collection.CarryForward(NewCollection(active))

	for _, row := range active {
		_, ok := collection.Get(row.ID)
		if !ok {
			collection.Append(row)
		}
	}

	m.collection = collection
	m.storeSnapshot()
}

// storeSnapshot publishes the collection to readers. Must be called with mu held.
func (m *Manager) storeSnapshot() {
	items := m.collection.Items()
	m.snapshot.Store(&items)
}

func (m *Manager) count() int {
	return len(*m.snapshot.Load())
}

// IgnoreVersion toggles the version-level ignore of an update, returning whether it's now ignored.
func (m *Manager) IgnoreVersion(id int64) (bool, error) {
	ignored, err := m.prefs.ToggleIgnoredVersion(id)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.rebuild()
	m.mu.Unlock()

	m.notifier.OnUpdatesAvailable(m.count())
	m.recorder.SetUpdatesAvailable(m.count())

	return ignored, nil
}

// IgnoreApp toggles the app-level ignore of a package, returning whether it's now ignored.
// Ignoring drops the package's updates right away, un-ignoring takes effect on the next refresh.
func (m *Manager) IgnoreApp(packageName string) (bool, error) {
	ignored, err := m.prefs.ToggleIgnoredApp(packageName)
	if err != nil {
		return false, err
	}

	if ignored {
		m.mu.Lock()
		m.raw = slices.DeleteFunc(slices.Clone(m.raw), func(u api.AppUpdate) bool { return u.PackageName == packageName })
		m.collection.RemovePackage(packageName)
		m.storeSnapshot()
		m.mu.Unlock()

		m.notifier.OnUpdatesAvailable(m.count())
		m.recorder.SetUpdatesAvailable(m.count())
	}

	return ignored, nil
}

// Apps lists the installed applications along with their ignore status.
func (m *Manager) Apps(ctx context.Context) ([]api.App, error) {
	installed, err := m.inventory.ListInstalledApps(ctx, nil)
	if err != nil {
		return nil, err
	}

	ignored := m.prefs.IgnoredApps()
	apps := make([]api.App, 0, len(installed))

	for _, app := range installed {
		apps = append(apps, api.App{InstalledApp: app, Ignored: slices.Contains(ignored, app.PackageName)})
	}

	slices.SortFunc(apps, func(a, b api.App) int {
		c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		if c != 0 {
			return c
		}

		return strings.Compare(a.PackageName, b.PackageName)
	})

	return apps, nil
}

func (m *Manager) setProgress(id int64, progress int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.active[id]
	if ok {
		row.Progress = min(100, max(0, progress))
		m.active[id] = row
	}

	if m.collection.SetProgress(id, progress) {
		m.storeSnapshot()
	}
}

// markInstalling records the row of an install that just started.
func (m *Manager) markInstalling(update api.AppUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	update.IsInstalling = true
	update.Progress = 0
	m.active[update.ID] = update

	m.rebuild()
}

// clearInstalling resets the flags of an install that is over.
func (m *Manager) clearInstalling(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, id)

	if m.collection.SetInstalling(id, false) {
		m.storeSnapshot()
	}
}

// Install starts downloading and installing an update in the background.
//
// Rejections (another install active, missing permission) are returned right away. The
// returned channel receives the final result once the update is installed, cancelled or failed.
func (m *Manager) Install(ctx context.Context, id int64, strategy api.InstallStrategy) (<-chan error, error) {
	update, err := m.Update(id)
	if err != nil {
		return nil, err
	}

	opCtx, err := m.orchestrator.Start(ctx, id, strategy)
	if err != nil {
		m.recorder.ObserveInstall(strategy, "rejected")

		return nil, err
	}

	m.markInstalling(update)

	done := make(chan error, 1)

	go func() {
		done <- m.runInstall(opCtx, update, strategy)
		close(done)
	}()

	return done, nil
}

func (m *Manager) runInstall(ctx context.Context, update api.AppUpdate, strategy api.InstallStrategy) error {
	start := time.Now()

	var written int64

	path, err := m.downloader.Download(ctx, update.ID, update.Link, func(p download.Progress) {
		written = p.BytesWritten
		percent := p.Percent()

		m.setProgress(update.ID, percent)
		m.notifier.OnDownloadProgress(update.ID, percent)
	})
	if err != nil {
		if errors.Is(err, download.ErrDownloadCancelled) {
			m.recorder.ObserveDownload("cancelled", written, time.Since(start))
			m.recorder.ObserveInstall(strategy, "cancelled")

			m.orchestrator.Cancel(update.ID)
			m.clearInstalling(update.ID)

			return err
		}

		m.recorder.ObserveDownload("failed", written, time.Since(start))
		m.recorder.ObserveInstall(strategy, "failed")

		m.orchestrator.Fail(update.ID, err)
		m.clearInstalling(update.ID)

		return err
	}

	m.recorder.ObserveDownload("completed", written, time.Since(start))

	err = m.orchestrator.Run(ctx, update.ID, update.PackageName, path)

	rmErr := m.downloader.Remove(update.ID)
	if rmErr != nil {
		slog.WarnContext(ctx, "Failed to remove downloaded artifact", "id", update.ID, "err", rmErr)
	}

	switch {
	case err == nil:
		m.recorder.ObserveInstall(strategy, "completed")
		m.FinishInstall(update.ID)
	case errors.Is(err, install.ErrInstallCancelled):
		m.recorder.ObserveInstall(strategy, "cancelled")
		m.clearInstalling(update.ID)
	default:
		m.recorder.ObserveInstall(strategy, "failed")
		m.clearInstalling(update.ID)
	}

	return err
}

// CancelInstall aborts the install of an update. The update stays listed.
func (m *Manager) CancelInstall(id int64) error {
	if !m.orchestrator.Cancel(id) {
		return install.ErrNotInstalling
	}

	m.clearInstalling(id)

	return nil
}

// FinishInstall removes an installed update from the list and frees the install slot.
func (m *Manager) FinishInstall(id int64) {
	m.mu.Lock()
	m.raw = slices.DeleteFunc(slices.Clone(m.raw), func(u api.AppUpdate) bool { return u.ID == id })
	delete(m.active, id)
	m.collection.Remove(id)
	m.storeSnapshot()
	m.mu.Unlock()

	m.orchestrator.Finish(id)

	m.notifier.OnUpdatesAvailable(m.count())
	m.recorder.SetUpdatesAvailable(m.count())
}
