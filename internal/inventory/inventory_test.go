package inventory_test

import (
	"archive/zip"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallstep/pkcs7"
	"github.com/stretchr/testify/require"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/inventory"
)

// writeSignedAPK creates a minimal APK carrying a v1 signature block, returning the certificate's SHA-256.
func writeSignedAPK(t *testing.T, path string) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Test signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	signed, err := pkcs7.NewSignedData([]byte("Signature-Version: 1.0\r\n"))
	require.NoError(t, err)
	require.NoError(t, signed.AddSigner(cert, key, pkcs7.SignerInfoConfig{}))
	signed.Detach()

	block, err := signed.Finish()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))

	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)

	for name, content := range map[string][]byte{
		"AndroidManifest.xml":  []byte("manifest"),
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\r\n"),
		"META-INF/CERT.RSA":    block,
	} {
		entry, err := w.Create(name)
		require.NoError(t, err)

		_, err = entry.Write(content)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	sum := sha256.Sum256(der)

	return hex.EncodeToString(sum[:])
}

func TestSigningDigests(t *testing.T) {
	t.Parallel()

	apk := filepath.Join(t.TempDir(), "base.apk")
	expected := writeSignedAPK(t, apk)

	sha1Sum, sha256Sum, err := inventory.SigningDigests(apk)
	require.NoError(t, err)
	require.Len(t, sha1Sum, 40)
	require.Equal(t, expected, sha256Sum)

	// APKs without a v1 signature.
	unsigned := filepath.Join(t.TempDir(), "unsigned.apk")

	f, err := os.Create(unsigned)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	_, _, err = inventory.SigningDigests(unsigned)
	require.Error(t, err)
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
apps:
  - package_name: org.example.b
    version_name: "2.0"
    version_code: 20
  - package_name: org.example.a
    name: Example A
    version_name: "1.0"
    version_code: 10
    signature_sha256: abcd
`), 0o600))

	inv := &inventory.File{Path: yamlPath}

	apps, err := inv.ListInstalledApps(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []api.InstalledApp{
		{PackageName: "org.example.a", Name: "Example A", VersionName: "1.0", VersionCode: 10, SignatureSHA256: "abcd"},
		{PackageName: "org.example.b", Name: "org.example.b", VersionName: "2.0", VersionCode: 20},
	}, apps)

	apps, err = inv.ListInstalledApps(context.Background(), []string{"org.example.a"})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, "org.example.b", apps[0].PackageName)

	jsonPath := filepath.Join(dir, "apps.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"apps": [{"package_name": "org.example.c", "version_code": 3}]}`), 0o600))

	apps, err = (&inventory.File{Path: jsonPath}).ListInstalledApps(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, int64(3), apps[0].VersionCode)
}

func TestFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := (&inventory.File{Path: filepath.Join(dir, "missing.yaml")}).ListInstalledApps(context.Background(), nil)
	require.ErrorIs(t, err, inventory.ErrNoInventory)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("apps:\n  - version_code: 1\n"), 0o600))

	_, err = (&inventory.File{Path: invalid}).ListInstalledApps(context.Background(), nil)
	require.ErrorIs(t, err, inventory.ErrNoInventory)
}

func TestPackageManager(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codePath := filepath.Join(dir, "data", "app", "org.example.app-1")
	expected := writeSignedAPK(t, filepath.Join(codePath, "base.apk"))

	listing := filepath.Join(dir, "dumpsys.txt")
	require.NoError(t, os.WriteFile(listing, []byte(`Packages:
  Package [org.example.app] (f00ba4):
    userId=10123
    codePath=`+codePath+`
    versionCode=42 minSdk=21 targetSdk=33
    versionName=4.2
    pkgFlags=[ HAS_CODE ALLOW_CLEAR_USER_DATA ]
  Package [com.android.settings] (c0ffee):
    codePath=/system/priv-app/Settings
    versionCode=33 minSdk=33 targetSdk=33
    versionName=13
    pkgFlags=[ SYSTEM HAS_CODE ]
  Package [com.android.chrome] (beef):
    codePath=/data/app/missing
    versionCode=100 minSdk=29 targetSdk=33
    versionName=100.0
    pkgFlags=[ SYSTEM HAS_CODE UPDATED_SYSTEM_APP ]

Hidden system packages:
  Package [com.android.chrome] (dead):
    versionCode=90 minSdk=29 targetSdk=33
`), 0o600))

	pm := &inventory.PackageManager{Command: "cat", Args: []string{listing}}

	apps, err := pm.ListInstalledApps(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, apps, 2)

	require.Equal(t, "com.android.chrome", apps[0].PackageName)
	require.Equal(t, int64(100), apps[0].VersionCode)
	require.Empty(t, apps[0].SignatureSHA256)

	require.Equal(t, "org.example.app", apps[1].PackageName)
	require.Equal(t, "4.2", apps[1].VersionName)
	require.Equal(t, "org.example.app", apps[1].Name)
	require.Equal(t, int64(42), apps[1].VersionCode)
	require.Equal(t, expected, apps[1].SignatureSHA256)

	pm.IncludeSystem = true

	apps, err = pm.ListInstalledApps(context.Background(), []string{"com.android.chrome"})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	require.Equal(t, "com.android.settings", apps[0].PackageName)

	pm.Command = "false"

	_, err = pm.ListInstalledApps(context.Background(), nil)
	require.ErrorIs(t, err, inventory.ErrNoInventory)
}
