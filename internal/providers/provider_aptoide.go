package providers

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/apkupdater/apkupdaterd/api"
)

const aptoideURL = "https://ws75.aptoide.com/api/7"

// The Aptoide source.
type aptoide struct {
	client *Client
	config map[string]string

	baseURL string
}

type aptoideResponse struct {
	Info   aptoideInfo    `json:"info"`
	Data   aptoideApp     `json:"data"`
	Errors []aptoideError `json:"errors"`
}

type aptoideInfo struct {
	Status string `json:"status"`
}

type aptoideError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type aptoideApp struct {
	Name    string       `json:"name"`
	Package string       `json:"package"`
	Icon    string       `json:"icon"`
	File    aptoideFile  `json:"file"`
	Media   aptoideMedia `json:"media"`
}

type aptoideFile struct {
	VerName   string           `json:"vername"`
	VerCode   int64            `json:"vercode"`
	MD5Sum    string           `json:"md5sum"`
	Path      string           `json:"path"`
	PathAlt   string           `json:"path_alt"`
	Signature aptoideSignature `json:"signature"`
}

type aptoideSignature struct {
	SHA1 string `json:"sha1"`
}

type aptoideMedia struct {
	News string `json:"news"`
}

func (*aptoide) ID() api.SourceID {
	return api.SourceAptoide
}

func (*aptoide) ClearCache(_ context.Context) error {
	return nil
}

func (p *aptoide) load(_ context.Context) error {
	p.baseURL = strings.TrimSuffix(configValue(p.config, "base_url", aptoideURL), "/")

	return nil
}

func (p *aptoide) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	candidate, err := p.lookup(ctx, app)

	return candidate, lookupError(p.ID(), app, err)
}

func (p *aptoide) lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	req, err := p.client.Request(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	resp, err := req.
		SetQueryParam("package_name", app.PackageName).
		Get(p.baseURL + "/app/getMeta")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNoUpdateAvailable
	}

	err = checkResponse(resp, err)
	if err != nil {
		return nil, err
	}

	var body aptoideResponse

	err = decodeBody(resp, &body)
	if err != nil {
		return nil, err
	}

	// APK-5 is Aptoide's "no such package".
	if slices.ContainsFunc(body.Errors, func(e aptoideError) bool { return e.Code == "APK-5" }) {
		return nil, ErrNoUpdateAvailable
	}

	file := body.Data.File

	if file.VerCode <= app.VersionCode {
		return nil, ErrNoUpdateAvailable
	}

	if app.SignatureSHA1 != "" && file.Signature.SHA1 != "" && toAptoideSHA1(app.SignatureSHA1) != strings.ToUpper(file.Signature.SHA1) {
		return nil, ErrNoUpdateAvailable
	}

	target := file.Path
	if target == "" {
		target = file.PathAlt
	}

	candidate := newCandidate(p.ID(), app)
	candidate.VersionName = file.VerName
	candidate.VersionCode = file.VerCode
	candidate.Changelog = body.Data.Media.News
	candidate.Link = api.Link{Type: api.LinkTypeURL, URL: target}

	if candidate.Icon == "" {
		candidate.Icon = body.Data.Icon
	}

	return candidate, nil
}
