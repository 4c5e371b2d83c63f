package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apkupdater/apkupdaterd/api"
)

// chunkSize is the amount of data copied between two progress reports.
const chunkSize = 256 * 1024

// Progress reports how far along a download is. TotalBytes is -1 when unknown.
type Progress struct {
	BytesWritten int64
	TotalBytes   int64
}

// Percent returns the progress as a value between 0 and 100, or 0 when the total is unknown.
func (p Progress) Percent() int {
	if p.TotalBytes <= 0 {
		return 0
	}

	return int(min(100, p.BytesWritten*100/p.TotalBytes))
}

// Manager fetches update artifacts into a local directory.
type Manager struct {
	dir       string
	client    *http.Client
	userAgent string
	resolvers map[api.LinkType]Resolver
}

// NewManager returns a download manager storing artifacts under dir.
func NewManager(dir string, client *http.Client, userAgent string) *Manager {
	return &Manager{
		dir:       dir,
		client:    client,
		userAgent: userAgent,
		resolvers: map[api.LinkType]Resolver{
			api.LinkTypeURL:        DirectResolver{},
			api.LinkTypeMirrorPage: &PageResolver{Client: client, UserAgent: userAgent},
		},
	}
}

// SetResolver overrides the resolution strategy for a link type.
func (m *Manager) SetResolver(linkType api.LinkType, resolver Resolver) {
	m.resolvers[linkType] = resolver
}

// Path returns where the artifact for the given update is stored.
func (m *Manager) Path(id int64) string {
	return filepath.Join(m.dir, strconv.FormatInt(id, 10)+".apk")
}

// Remove deletes the artifact for the given update, if present.
func (m *Manager) Remove(id int64) error {
	err := os.Remove(m.Path(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// Download resolves the link and streams the artifact to disk, returning its path.
//
// Cancelling ctx aborts the transfer with ErrDownloadCancelled. Any partial file is removed.
func (m *Manager) Download(ctx context.Context, id int64, link api.Link, progressFunc func(Progress)) (string, error) {
	resolver, ok := m.resolvers[link.Type]
	if !ok {
		return "", &Error{ID: id, URL: link.URL, Err: fmt.Errorf("unsupported link type %q", link.Type)}
	}

	assetURL, err := resolver.Resolve(ctx, link)
	if err != nil {
		return "", m.wrap(ctx, id, link.URL, err)
	}

	err = os.MkdirAll(m.dir, 0o700)
	if err != nil {
		return "", &Error{ID: id, URL: assetURL, Err: err}
	}

	target := m.Path(id)
	partial := target + ".part"

	err = m.downloadAsset(ctx, assetURL, link.SHA256, partial, progressFunc)
	if err != nil {
		_ = os.Remove(partial)

		return "", m.wrap(ctx, id, assetURL, err)
	}

	err = os.Rename(partial, target)
	if err != nil {
		_ = os.Remove(partial)

		return "", &Error{ID: id, URL: assetURL, Err: err}
	}

	slog.InfoContext(ctx, "Downloaded update", "id", id, "path", target)

	return target, nil
}

func (*Manager) wrap(ctx context.Context, id int64, assetURL string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrDownloadCancelled, context.Cause(ctx))
	}

	return &Error{ID: id, URL: assetURL, Err: err}
}

func (m *Manager) downloadAsset(ctx context.Context, assetURL string, expectedSHA256 string, target string, progressFunc func(Progress)) error {
	// Remove the target file, if it exists.
	err := os.Remove(target)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	// Prepare the request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return fmt.Errorf("unable to create http request: %w", err)
	}

	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to get http response: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("unexpected HTTP status: " + resp.Status)
	}

	// Setup a sha256 hasher.
	h := sha256.New()

	// Setup the main reader.
	body := io.TeeReader(resp.Body, h)

	// #nosec G304
	fd, err := os.Create(target)
	if err != nil {
		return err
	}

	defer fd.Close()

	progress := Progress{TotalBytes: resp.ContentLength}

	// Read in chunks to avoid excessive memory consumption and to report progress.
	for {
		n, err := io.CopyN(fd, body, chunkSize)
		progress.BytesWritten += n

		if progressFunc != nil && n > 0 {
			progressFunc(progress)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return err
		}
	}

	// Check the hash.
	if expectedSHA256 != "" && !strings.EqualFold(expectedSHA256, hex.EncodeToString(h.Sum(nil))) {
		return errors.New("sha256 mismatch for file " + target)
	}

	return fd.Close()
}
