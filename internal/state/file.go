package state

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
)

var currentStateVersion = 2

// ErrInvalidPreferences is returned when trying to store preferences that fail validation.
var ErrInvalidPreferences = errors.New("invalid preferences")

// LoadOrCreate parses the on-disk state file and returns a State struct.
// If no file exists, a new one with default preferences is created.
func LoadOrCreate(path string) (*State, error) {
	s := State{
		path: path,

		StateVersion: currentStateVersion,
	}

	body, err := os.ReadFile(s.path) //nolint:gosec
	if err == nil {
		err = Decode(body, nil, &s)
		if err != nil {
			return nil, err
		}

		api.SortSources(s.Preferences.EnabledSources)

		return &s, nil
	}

	if os.IsNotExist(err) {
		s.applyDefaults()

		// State file doesn't exist, create it and return it.
		err = s.Save()
		if err != nil {
			return nil, err
		}

		return &s, nil
	}

	return nil, err
}

// Save writes out the current state struct into its on-disk storage.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save()
}

func (s *State) save() error {
	// If we failed to fully load the existing state, refuse to save any changes to prevent accidental data loss.
	if len(s.UnrecognizedFields) > 0 {
		slog.Error("Refusing to save state because we previously failed to properly load the existing state", "fields", s.UnrecognizedFields)

		return nil
	}

	// In-memory only state.
	if s.path == "" {
		return nil
	}

	body, err := Encode(s)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(s.path), 0o700)
	if err != nil {
		return err
	}

	// Write to a temporary file first so a crash never leaves a truncated state behind.
	tmpPath := s.path + ".tmp"

	err = os.WriteFile(tmpPath, body, 0o600)
	if err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

// applyDefaults sets the preferences of a freshly created state.
func (s *State) applyDefaults() {
	s.Preferences = DefaultPreferences()
}

// DefaultPreferences returns the preferences used when no state exists yet.
func DefaultPreferences() api.Preferences {
	return api.Preferences{
		EnabledSources:       slices.Clone(api.DefaultSourceOrder),
		RefreshFrequencyDays: 1,
		RefreshHour:          12,
	}
}

func clonePreferences(p api.Preferences) api.Preferences {
	p.IgnoredApps = slices.Clone(p.IgnoredApps)
	p.IgnoredVersions = slices.Clone(p.IgnoredVersions)
	p.EnabledSources = slices.Clone(p.EnabledSources)

	// Priority between sources is their declared order, whatever order they're listed in.
	api.SortSources(p.EnabledSources)

	return p
}

// GetPreferences returns a copy of the current preferences.
func (s *State) GetPreferences() api.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clonePreferences(s.Preferences)
}

// SetPreferences validates and persists a new set of preferences.
func (s *State) SetPreferences(p api.Preferences) error {
	err := p.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPreferences, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Preferences = clonePreferences(p)

	return s.save()
}

// IgnoredApps returns the list of package names excluded from update checks.
func (s *State) IgnoredApps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.Preferences.IgnoredApps)
}

// IgnoredVersions returns the list of ignored update identifiers.
func (s *State) IgnoredVersions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.Preferences.IgnoredVersions)
}

// EnabledSources returns the enabled sources, in priority order.
func (s *State) EnabledSources() []api.SourceID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.Preferences.EnabledSources)
}

// ToggleIgnoredApp adds or removes a package from the ignore list, returning whether it is now ignored.
func (s *State) ToggleIgnoredApp(packageName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ignored := toggle(&s.Preferences.IgnoredApps, packageName)

	return ignored, s.save()
}

// ToggleIgnoredVersion adds or removes an update identifier from the ignore list, returning whether it is now ignored.
func (s *State) ToggleIgnoredVersion(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ignored := toggle(&s.Preferences.IgnoredVersions, id)

	return ignored, s.save()
}

// RecordCheck records the completion time and result count of an update check.
func (s *State) RecordCheck(when time.Time, updates int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Check.LastCheck = when.Format(time.RFC3339)
	s.Check.Updates = updates

	return s.save()
}

// LastCheck returns the details of the last recorded update check.
func (s *State) LastCheck() Check {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Check
}

func toggle[T comparable](list *[]T, value T) bool {
	idx := slices.Index(*list, value)
	if idx >= 0 {
		*list = slices.Delete(*list, idx, idx+1)

		return false
	}

	*list = append(*list, value)

	return true
}

// CurrentVersion returns the version of the state format written by Save.
func CurrentVersion() int {
	return currentStateVersion
}
