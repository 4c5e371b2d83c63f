package inventory

import (
	"archive/zip"
	"bufio"
	"context"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"
	"github.com/smallstep/pkcs7"

	"github.com/apkupdater/apkupdaterd/api"
)

var errNoSigningCertificate = errors.New("no v1 signing certificate")

// PackageManager lists the installed applications through the device's package manager.
type PackageManager struct {
	// Command and Args produce a "dumpsys package packages" listing.
	Command string
	Args    []string

	// IncludeSystem also reports system applications that weren't updated by the user.
	IncludeSystem bool
}

// NewPackageManager returns an inventory backed by dumpsys.
func NewPackageManager() *PackageManager {
	return &PackageManager{
		Command: "dumpsys",
		Args:    []string{"package", "packages"},
	}
}

// pmPackage is a package entry of the dumpsys listing.
type pmPackage struct {
	app      api.InstalledApp
	codePath string
	system   bool
	updated  bool
}

// ListInstalledApps returns the installed applications, with their signing certificate digests when available.
func (p *PackageManager) ListInstalledApps(ctx context.Context, exclude []string) ([]api.InstalledApp, error) {
	output, err := subprocess.RunCommandContext(ctx, p.Command, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInventory, err)
	}

	packages, err := parseDumpsys(strings.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInventory, err)
	}

	apps := make([]api.InstalledApp, 0, len(packages))

	for _, pkg := range packages {
		if pkg.system && !pkg.updated && !p.IncludeSystem {
			continue
		}

		app := pkg.app

		if pkg.codePath != "" {
			sha1Sum, sha256Sum, err := SigningDigests(apkPath(pkg.codePath))
			if err != nil {
				slog.DebugContext(ctx, "Unable to read signing certificate", "package", app.PackageName, "err", err)
			} else {
				app.SignatureSHA1 = sha1Sum
				app.SignatureSHA256 = sha256Sum
			}
		}

		apps = append(apps, app)
	}

	return finalize(apps, exclude), nil
}

// apkPath returns the base APK for a package's code path.
func apkPath(codePath string) string {
	if strings.HasSuffix(codePath, ".apk") {
		return codePath
	}

	return filepath.Join(codePath, "base.apk")
}

// parseDumpsys extracts the packages from a "dumpsys package packages" listing.
func parseDumpsys(r io.Reader) ([]pmPackage, error) {
	packages := []pmPackage{}

	var current *pmPackage

	flush := func() {
		if current != nil {
			packages = append(packages, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Only the first section lists the active packages.
		if strings.HasPrefix(line, "Hidden system packages:") {
			break
		}

		if strings.HasPrefix(line, "Package [") {
			flush()

			name, _, ok := strings.Cut(strings.TrimPrefix(line, "Package ["), "]")
			if !ok {
				continue
			}

			current = &pmPackage{app: api.InstalledApp{PackageName: name}}

			continue
		}

		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		switch key {
		case "versionCode":
			// "versionCode=123 minSdk=21 targetSdk=33"
			fields := strings.Fields(value)
			if len(fields) == 0 {
				continue
			}

			versionCode, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid version code for %q: %w", current.app.PackageName, err)
			}

			current.app.VersionCode = versionCode
		case "versionName":
			current.app.VersionName = value
		case "codePath":
			current.codePath = value
		case "pkgFlags":
			current.system = strings.Contains(value, " SYSTEM ")
			current.updated = strings.Contains(value, " UPDATED_SYSTEM_APP ")
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, err
	}

	flush()

	return packages, nil
}

// SigningDigests returns the lowercase hex SHA-1 and SHA-256 digests of the v1 signing
// certificate of an APK.
func SigningDigests(apk string) (string, string, error) {
	r, err := zip.OpenReader(apk)
	if err != nil {
		return "", "", err
	}

	defer r.Close()

	for _, f := range r.File {
		dir, name := path.Split(f.Name)
		if dir != "META-INF/" {
			continue
		}

		switch strings.ToUpper(path.Ext(name)) {
		case ".RSA", ".DSA", ".EC":
		default:
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", "", err
		}

		content, err := io.ReadAll(rc)
		_ = rc.Close()

		if err != nil {
			return "", "", err
		}

		p7, err := pkcs7.Parse(content)
		if err != nil {
			return "", "", fmt.Errorf("unable to parse %q: %w", f.Name, err)
		}

		if len(p7.Certificates) == 0 {
			return "", "", fmt.Errorf("%q holds no certificate", f.Name)
		}

		raw := p7.Certificates[0].Raw
		sha1Sum := sha1.Sum(raw) //nolint:gosec
		sha256Sum := sha256.Sum256(raw)

		return hex.EncodeToString(sha1Sum[:]), hex.EncodeToString(sha256Sum[:]), nil
	}

	return "", "", errNoSigningCertificate
}
