package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apkupdater/apkupdaterd/api"
)

// manifest is the content of an inventory file.
type manifest struct {
	Apps []api.InstalledApp `json:"apps" yaml:"apps"`
}

// File reads the installed applications from a YAML or JSON manifest.
//
// The file is read again on every call so it can be updated while the daemon runs.
type File struct {
	Path string
}

// ListInstalledApps returns the applications listed in the manifest.
func (f *File) ListInstalledApps(_ context.Context, exclude []string) ([]api.InstalledApp, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInventory, err)
	}

	var m manifest

	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".json":
		err = json.Unmarshal(content, &m)
	default:
		err = yaml.Unmarshal(content, &m)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse %q: %w", ErrNoInventory, f.Path, err)
	}

	for i, app := range m.Apps {
		if app.PackageName == "" {
			return nil, fmt.Errorf("%w: entry %d of %q has no package name", ErrNoInventory, i, f.Path)
		}
	}

	return finalize(m.Apps, exclude), nil
}
