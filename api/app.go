package api

// InstalledApp is a snapshot of an application installed on the device.
type InstalledApp struct {
	PackageName     string `json:"package_name"     yaml:"package_name"`
	Name            string `json:"name"             yaml:"name"`
	VersionName     string `json:"version_name"     yaml:"version_name"`
	VersionCode     int64  `json:"version_code"     yaml:"version_code"`
	SignatureSHA1   string `json:"signature_sha1"   yaml:"signature_sha1"`
	SignatureSHA256 string `json:"signature_sha256" yaml:"signature_sha256"`
	Icon            string `json:"icon"             yaml:"icon"`
}

// App is an installed application as returned by the API.
type App struct {
	InstalledApp `yaml:",inline"`

	Ignored bool `json:"ignored" yaml:"ignored"`
}

// LinkType describes how a download link has to be handled before the transfer starts.
type LinkType string

const (
	// LinkTypeURL is a direct, final download URL.
	LinkTypeURL LinkType = "url"

	// LinkTypeMirrorPage is a mirror web page that must be resolved to the actual file.
	LinkTypeMirrorPage LinkType = "mirror-page"
)

// Link points to a downloadable artifact.
type Link struct {
	Type   LinkType `json:"type"             yaml:"type"`
	URL    string   `json:"url"              yaml:"url"`
	SHA256 string   `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// UpdateCandidate is the answer of a single source for a single installed application.
//
// VersionCode and OldVersionCode are always comparable with each other, and a candidate is
// only valid when VersionCode is strictly greater than OldVersionCode.
type UpdateCandidate struct {
	Source         SourceID `json:"source"           yaml:"source"`
	Name           string   `json:"name"             yaml:"name"`
	PackageName    string   `json:"package_name"     yaml:"package_name"`
	VersionName    string   `json:"version_name"     yaml:"version_name"`
	OldVersionName string   `json:"old_version_name" yaml:"old_version_name"`
	VersionCode    int64    `json:"version_code"     yaml:"version_code"`
	OldVersionCode int64    `json:"old_version_code" yaml:"old_version_code"`
	Link           Link     `json:"link"             yaml:"link"`
	Icon           string   `json:"icon"             yaml:"icon"`
	Changelog      string   `json:"changelog"        yaml:"changelog"`
}

// IsNewer returns whether the candidate qualifies as an update.
func (c *UpdateCandidate) IsNewer() bool {
	return c.VersionCode > c.OldVersionCode
}

// AppUpdate is the unified record surfaced to the user for one installed package.
type AppUpdate struct {
	UpdateCandidate `yaml:",inline"`

	ID           int64 `json:"id"            yaml:"id"`
	Progress     int   `json:"progress"      yaml:"progress"`
	IsInstalling bool  `json:"is_installing" yaml:"is_installing"`
}
