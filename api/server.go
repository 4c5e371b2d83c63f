package api

// ServerEnvironment is the summary returned by the API root.
type ServerEnvironment struct {
	Version          string            `json:"version"                     yaml:"version"`
	Strategies       []InstallStrategy `json:"strategies"                  yaml:"strategies"`
	Updates          int               `json:"updates"                     yaml:"updates"`
	Installing       int64             `json:"installing,omitempty"        yaml:"installing,omitempty"`
	LastCheck        string            `json:"last_check,omitempty"        yaml:"last_check,omitempty"`
	LastCheckUpdates int               `json:"last_check_updates"          yaml:"last_check_updates"`
	NextCheck        string            `json:"next_check,omitempty"        yaml:"next_check,omitempty"`
}

// AppUpdateDetail is a single update along with where it is in the install process.
type AppUpdateDetail struct {
	AppUpdate `yaml:",inline"`

	InstallState InstallState `json:"install_state" yaml:"install_state"`
}

// IgnoreStatus is returned when toggling an ignore.
type IgnoreStatus struct {
	Ignored bool `json:"ignored" yaml:"ignored"`
}
