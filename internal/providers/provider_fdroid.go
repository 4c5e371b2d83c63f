package providers

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
)

const (
	fdroidURL = "https://f-droid.org/repo"
	izzyURL   = "https://apt.izzysoft.de/fdroid/repo"
)

// The F-Droid source, used for both the main F-Droid repository and IzzyOnDroid.
type fdroid struct {
	id         api.SourceID
	defaultURL string
	client     *Client
	config     map[string]string

	baseURL  string
	cacheTTL time.Duration

	indexLastCheck time.Time
	index          *fdroidIndex
	indexMu        sync.Mutex
}

type fdroidIndex struct {
	Apps     []fdroidApp                `json:"apps"`
	Packages map[string][]fdroidPackage `json:"packages"`
}

type fdroidApp struct {
	PackageName string                     `json:"packageName"`
	Name        string                     `json:"name"`
	Icon        string                     `json:"icon"`
	Localized   map[string]fdroidLocalized `json:"localized"`
}

type fdroidLocalized struct {
	Name     string `json:"name"`
	WhatsNew string `json:"whatsNew"`
}

type fdroidPackage struct {
	VersionCode int64  `json:"versionCode"`
	VersionName string `json:"versionName"`
	APKName     string `json:"apkName"`
	Hash        string `json:"hash"`
	HashType    string `json:"hashType"`
	Signer      string `json:"signer"`
	Added       int64  `json:"added"`
}

func (p *fdroid) ID() api.SourceID {
	return p.id
}

func (p *fdroid) ClearCache(_ context.Context) error {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()

	// Reset the last check time.
	p.indexLastCheck = time.Time{}

	return nil
}

func (p *fdroid) load(_ context.Context) error {
	p.baseURL = strings.TrimSuffix(configValue(p.config, "base_url", p.defaultURL), "/")

	p.cacheTTL = time.Hour
	if p.config["cache_ttl"] != "" {
		ttl, err := time.ParseDuration(p.config["cache_ttl"])
		if err != nil {
			return err
		}

		p.cacheTTL = ttl
	}

	return nil
}

func (p *fdroid) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	candidate, err := p.lookup(ctx, app)

	return candidate, lookupError(p.ID(), app, err)
}

func (p *fdroid) lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	index, err := p.checkIndex(ctx)
	if err != nil {
		return nil, err
	}

	var best *fdroidPackage

	for i, pkg := range index.Packages[app.PackageName] {
		// Only consider builds signed with the installed key, when both sides know it.
		if pkg.Signer != "" && app.SignatureSHA256 != "" && !strings.EqualFold(pkg.Signer, app.SignatureSHA256) {
			continue
		}

		if best == nil || pkg.VersionCode > best.VersionCode || (pkg.VersionCode == best.VersionCode && pkg.Added > best.Added) {
			best = &index.Packages[app.PackageName][i]
		}
	}

	if best == nil || best.VersionCode <= app.VersionCode {
		return nil, ErrNoUpdateAvailable
	}

	candidate := newCandidate(p.ID(), app)
	candidate.VersionName = best.VersionName
	candidate.VersionCode = best.VersionCode
	candidate.Link = api.Link{Type: api.LinkTypeURL, URL: p.baseURL + "/" + best.APKName}

	if best.HashType == "sha256" {
		candidate.Link.SHA256 = strings.ToLower(best.Hash)
	}

	for _, entry := range index.Apps {
		if entry.PackageName != app.PackageName {
			continue
		}

		localized, ok := entry.Localized["en-US"]
		if ok {
			candidate.Changelog = localized.WhatsNew
		}

		if candidate.Icon == "" && entry.Icon != "" {
			candidate.Icon = p.baseURL + "/icons-640/" + entry.Icon
		}

		break
	}

	return candidate, nil
}

// checkIndex returns the repository index, refreshing it when older than the cache TTL.
func (p *fdroid) checkIndex(ctx context.Context) (*fdroidIndex, error) {
	// Acquire lock.
	p.indexMu.Lock()
	defer p.indexMu.Unlock()

	if p.index != nil && !p.indexLastCheck.IsZero() && p.indexLastCheck.Add(p.cacheTTL).After(time.Now()) {
		return p.index, nil
	}

	req, err := p.client.Request(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	resp, err := req.Get(p.baseURL + "/index-v1.json")

	err = checkResponse(resp, err)
	if err != nil {
		return nil, err
	}

	index := &fdroidIndex{}

	err = decodeBody(resp, index)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Refreshed repository index", "source", p.id, "packages", len(index.Packages))

	// Record the index.
	p.indexLastCheck = time.Now()
	p.index = index

	return index, nil
}
