package state

import (
	"sync"

	"github.com/apkupdater/apkupdaterd/api"
)

// Check holds information about the last update check.
type Check struct {
	LastCheck string `json:"last_check" yaml:"last_check"` // RFC3339, in system's timezone.
	Updates   int    `json:"updates"    yaml:"updates"`
}

// State represents the on-disk persistent state.
type State struct {
	path string
	mu   sync.Mutex

	StateVersion int `json:"-" state:"-"`

	Preferences api.Preferences `json:"preferences" yaml:"preferences"`
	Check       Check           `json:"check"       yaml:"check"`

	// Fields that couldn't be mapped to the current structure, preventing any save.
	UnrecognizedFields []string `json:"-" state:"-"`
}
