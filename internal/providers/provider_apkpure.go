package providers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/apkupdater/apkupdaterd/api"
)

const (
	apkpureURL       = "https://tapi.pureapk.com"
	apkpureUserAgent = "APKPure/3.19.39 (Aegon)"
)

// The APKPure source, asking the store's update endpoint about a single package.
type apkpure struct {
	client *Client
	config map[string]string

	baseURL   string
	userAgent string
}

type apkpureRequest struct {
	AppList    []apkpureAppInfo `json:"app_list"`
	CachedSize int              `json:"cached_size"`
}

type apkpureAppInfo struct {
	PackageName string `json:"package_name"`
	VersionCode int64  `json:"version_code"`
}

type apkpureResponse struct {
	AppList []apkpureApp `json:"app_list"`
}

type apkpureApp struct {
	PackageName string       `json:"package_name"`
	Label       string       `json:"label"`
	VersionCode string       `json:"version_code"`
	VersionName string       `json:"version_name"`
	WhatsNew    string       `json:"whatsnew"`
	Icon        string       `json:"icon"`
	Sign        []string     `json:"sign"`
	Asset       apkpureAsset `json:"asset"`
}

type apkpureAsset struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

func (*apkpure) ID() api.SourceID {
	return api.SourceApkPure
}

func (*apkpure) ClearCache(_ context.Context) error {
	return nil
}

func (p *apkpure) load(_ context.Context) error {
	p.baseURL = strings.TrimSuffix(configValue(p.config, "base_url", apkpureURL), "/")
	p.userAgent = configValue(p.config, "user_agent", apkpureUserAgent)

	return nil
}

func (p *apkpure) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	candidate, err := p.lookup(ctx, app)

	return candidate, lookupError(p.ID(), app, err)
}

func (p *apkpure) lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	req, err := p.client.Request(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	resp, err := req.
		SetHeader("User-Agent", p.userAgent).
		SetHeader("Ual-Access-Businessid", "projecta").
		SetHeader("Content-Type", "application/json").
		SetBody(apkpureRequest{
			AppList:    []apkpureAppInfo{{PackageName: app.PackageName, VersionCode: app.VersionCode}},
			CachedSize: -1,
		}).
		Post(p.baseURL + "/v3/get_app_update")

	err = checkResponse(resp, err)
	if err != nil {
		return nil, err
	}

	var body apkpureResponse

	err = decodeBody(resp, &body)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(body.AppList, func(a apkpureApp) bool { return a.PackageName == app.PackageName })
	if idx < 0 {
		return nil, ErrNoUpdateAvailable
	}

	entry := body.AppList[idx]

	versionCode, err := strconv.ParseInt(entry.VersionCode, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version code %q: %w", entry.VersionCode, err)
	}

	if versionCode <= app.VersionCode {
		return nil, ErrNoUpdateAvailable
	}

	// XAPK bundles can't go through a plain package install.
	if entry.Asset.Type != "" && !strings.EqualFold(entry.Asset.Type, "APK") {
		return nil, ErrNoUpdateAvailable
	}

	if app.SignatureSHA1 != "" && len(entry.Sign) > 0 && !slices.ContainsFunc(entry.Sign, func(s string) bool {
		return strings.EqualFold(strings.ReplaceAll(s, ":", ""), app.SignatureSHA1)
	}) {
		return nil, ErrNoUpdateAvailable
	}

	if entry.Asset.URL == "" {
		return nil, fmt.Errorf("no download link for version %d", versionCode)
	}

	candidate := newCandidate(p.ID(), app)
	candidate.VersionName = entry.VersionName
	candidate.VersionCode = versionCode
	candidate.Changelog = entry.WhatsNew
	candidate.Link = api.Link{Type: api.LinkTypeURL, URL: entry.Asset.URL, SHA256: strings.ToLower(entry.Asset.SHA256)}

	if candidate.Name == "" {
		candidate.Name = entry.Label
	}

	if candidate.Icon == "" {
		candidate.Icon = entry.Icon
	}

	return candidate, nil
}
