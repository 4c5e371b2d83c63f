package api

import (
	"errors"
	"fmt"
	"slices"
)

// Preferences holds the user preferences driving update checks.
type Preferences struct {
	IgnoredApps          []string   `json:"ignored_apps"           yaml:"ignored_apps"`
	IgnoredVersions      []int64    `json:"ignored_versions"       yaml:"ignored_versions"`
	EnabledSources       []SourceID `json:"enabled_sources"        yaml:"enabled_sources"`
	RefreshFrequencyDays int        `json:"refresh_frequency_days" yaml:"refresh_frequency_days"`
	RefreshHour          int        `json:"refresh_hour"           yaml:"refresh_hour"`
}

// RefreshFrequencies lists the supported number of days between two scheduled checks.
var RefreshFrequencies = []int{1, 3, 7}

// Validate performs basic sanity checks against the preferences.
func (p *Preferences) Validate() error {
	if !slices.Contains(RefreshFrequencies, p.RefreshFrequencyDays) {
		return fmt.Errorf("invalid refresh frequency %d, must be one of %v", p.RefreshFrequencyDays, RefreshFrequencies)
	}

	if p.RefreshHour < 0 || p.RefreshHour > 23 {
		return errors.New("invalid refresh hour, must be between 0 and 23")
	}

	seen := map[SourceID]struct{}{}

	for _, source := range p.EnabledSources {
		_, ok := Sources[source]
		if !ok {
			return fmt.Errorf("unknown source %q", source)
		}

		_, ok = seen[source]
		if ok {
			return fmt.Errorf("source %q listed more than once", source)
		}

		seen[source] = struct{}{}
	}

	return nil
}

// IsSourceEnabled returns whether the given source is enabled.
func (p *Preferences) IsSourceEnabled(source SourceID) bool {
	return slices.Contains(p.EnabledSources, source)
}
