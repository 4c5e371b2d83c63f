package api

import (
	"fmt"
	"slices"
)

// SourceID represents a remote catalog that can report application updates.
type SourceID string

const (
	// SourceMirror represents the primary APK mirror site.
	SourceMirror SourceID = "mirror"

	// SourceGitHub represents application releases published on GitHub.
	SourceGitHub SourceID = "github"

	// SourceGitLab represents application releases published on GitLab.
	SourceGitLab SourceID = "gitlab"

	// SourceFDroid represents the main F-Droid repository.
	SourceFDroid SourceID = "fdroid"

	// SourceIzzy represents the IzzyOnDroid F-Droid repository.
	SourceIzzy SourceID = "izzy"

	// SourceAptoide represents the Aptoide store.
	SourceAptoide SourceID = "aptoide"

	// SourceApkPure represents the APKPure store.
	SourceApkPure SourceID = "apkpure"
)

// DefaultSourceOrder is the declared registration order of the sources. When more than one
// source reports an update for the same package, the one listed first wins.
var DefaultSourceOrder = []SourceID{
	SourceMirror,
	SourceGitHub,
	SourceGitLab,
	SourceFDroid,
	SourceIzzy,
	SourceAptoide,
	SourceApkPure,
}

// Sources is a map of the supported sources.
var Sources = map[SourceID]struct{}{
	SourceMirror:  {},
	SourceGitHub:  {},
	SourceGitLab:  {},
	SourceFDroid:  {},
	SourceIzzy:    {},
	SourceAptoide: {},
	SourceApkPure: {},
}

// SortSources orders sources by their position in DefaultSourceOrder.
func SortSources(sources []SourceID) {
	slices.SortStableFunc(sources, func(a, b SourceID) int {
		return slices.Index(DefaultSourceOrder, a) - slices.Index(DefaultSourceOrder, b)
	})
}

func (s SourceID) String() string {
	return string(s)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s SourceID) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *SourceID) UnmarshalText(text []byte) error {
	_, ok := Sources[SourceID(text)]
	if !ok {
		return fmt.Errorf("unknown source %q", string(text))
	}

	*s = SourceID(text)

	return nil
}

// Source describes a configured source as returned by the API.
type Source struct {
	ID       SourceID `json:"id"       yaml:"id"`
	Priority int      `json:"priority" yaml:"priority"`
	Enabled  bool     `json:"enabled"  yaml:"enabled"`
}
