package inventory

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/apkupdater/apkupdaterd/api"
)

// ErrNoInventory is returned when the list of installed applications can't be obtained.
var ErrNoInventory = errors.New("installed applications can't be listed")

// Inventory lists the applications installed on the device.
type Inventory interface {
	ListInstalledApps(ctx context.Context, exclude []string) ([]api.InstalledApp, error)
}

// finalize drops the excluded packages and sorts the result by package name.
func finalize(apps []api.InstalledApp, exclude []string) []api.InstalledApp {
	apps = slices.DeleteFunc(apps, func(app api.InstalledApp) bool {
		return app.PackageName == "" || slices.Contains(exclude, app.PackageName)
	})

	slices.SortFunc(apps, func(a, b api.InstalledApp) int {
		return strings.Compare(a.PackageName, b.PackageName)
	})

	for i := range apps {
		if apps[i].Name == "" {
			apps[i].Name = apps[i].PackageName
		}
	}

	return apps
}
