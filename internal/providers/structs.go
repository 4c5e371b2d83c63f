package providers

import (
	"context"

	"github.com/apkupdater/apkupdaterd/api"
)

// Source represents a remote catalog able to report updates for installed applications.
type Source interface {
	ID() api.SourceID

	// Lookup returns the newest qualifying update for the application, ErrNoUpdateAvailable
	// when the catalog doesn't know the application or has nothing newer, or a *LookupError.
	Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error)

	// ClearCache drops any cached catalog data so the next lookup hits the network.
	ClearCache(ctx context.Context) error
}

// loadable is implemented by the built-in sources.
type loadable interface {
	Source

	load(ctx context.Context) error
}

// newCandidate prepares an update candidate carrying the installed application's details.
func newCandidate(source api.SourceID, app api.InstalledApp) *api.UpdateCandidate {
	return &api.UpdateCandidate{
		Source:         source,
		Name:           app.Name,
		PackageName:    app.PackageName,
		OldVersionName: app.VersionName,
		OldVersionCode: app.VersionCode,
		Icon:           app.Icon,
	}
}
