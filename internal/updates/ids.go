package updates

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/apkupdater/apkupdaterd/api"
)

// UpdateID returns the stable identifier of an update to the given version of a package.
//
// The value is kept within 53 bits so it survives JSON clients using floating point numbers.
func UpdateID(packageName string, versionCode int64) int64 {
	return int64(xxhash.Sum64String(packageName+"."+strconv.FormatInt(versionCode, 10)) >> 11) //nolint:gosec
}

// NewAppUpdate wraps a candidate into a listable update.
func NewAppUpdate(candidate api.UpdateCandidate) api.AppUpdate {
	return api.AppUpdate{
		UpdateCandidate: candidate,
		ID:              UpdateID(candidate.PackageName, candidate.VersionCode),
	}
}

// FilterIgnoredVersions returns the updates whose identifier isn't in ignored, preserving order.
func FilterIgnoredVersions(updates []api.AppUpdate, ignored []int64) []api.AppUpdate {
	filtered := make([]api.AppUpdate, 0, len(updates))

	for _, update := range updates {
		if slices.Contains(ignored, update.ID) {
			continue
		}

		filtered = append(filtered, update)
	}

	return filtered
}
