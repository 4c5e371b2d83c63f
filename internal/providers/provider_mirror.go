package providers

import (
	"context"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
)

const mirrorURL = "https://www.apkmirror.com"

// The mirror source, talking to an APKMirror-style "app exists" endpoint.
type mirror struct {
	client *Client
	config map[string]string

	baseURL  string
	exclude  []string
	arches   []string
	username string
	password string
}

type mirrorRequest struct {
	Pnames  []string `json:"pnames"`
	Exclude []string `json:"exclude"`
}

type mirrorResponse struct {
	Data []mirrorApp `json:"data"`
}

type mirrorApp struct {
	Pname   string        `json:"pname"`
	Exists  bool          `json:"exists"`
	Apks    []mirrorApk   `json:"apks"`
	Release mirrorRelease `json:"release"`
}

type mirrorRelease struct {
	Version  string `json:"version"`
	WhatsNew string `json:"whats_new"`
}

type mirrorApk struct {
	VersionCode      int64    `json:"version_code"`
	Link             string   `json:"link"`
	PublishDate      string   `json:"publish_date"`
	Arches           []string `json:"arches"`
	SignaturesSHA1   []string `json:"signatures-sha1"`
	SignaturesSHA256 []string `json:"signatures-sha256"`
}

func (*mirror) ID() api.SourceID {
	return api.SourceMirror
}

func (*mirror) ClearCache(_ context.Context) error {
	return nil
}

func (p *mirror) load(_ context.Context) error {
	p.baseURL = strings.TrimSuffix(configValue(p.config, "base_url", mirrorURL), "/")
	p.username = p.config["username"]
	p.password = p.config["password"]

	p.exclude = []string{"alpha", "beta"}
	if p.config["exclude"] != "" {
		p.exclude = strings.Split(p.config["exclude"], ",")
	} else if p.config["include_prereleases"] == "true" {
		p.exclude = []string{}
	}

	p.arches = defaultArches(runtime.GOARCH)
	if p.config["arches"] != "" {
		p.arches = strings.Split(p.config["arches"], ",")
	}

	return nil
}

func (p *mirror) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	candidate, err := p.lookup(ctx, app)

	return candidate, lookupError(p.ID(), app, err)
}

func (p *mirror) lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	req, err := p.client.Request(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	if p.username != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(mirrorRequest{Pnames: []string{app.PackageName}, Exclude: p.exclude}).
		Post(p.baseURL + "/wp-json/apkm/v1/app_exists/")

	err = checkResponse(resp, err)
	if err != nil {
		return nil, err
	}

	var body mirrorResponse

	err = decodeBody(resp, &body)
	if err != nil {
		return nil, err
	}

	for _, entry := range body.Data {
		if entry.Pname != app.PackageName || !entry.Exists {
			continue
		}

		apk := bestMirrorApk(entry.Apks, app, p.arches)
		if apk == nil || apk.VersionCode <= app.VersionCode {
			return nil, ErrNoUpdateAvailable
		}

		candidate := newCandidate(p.ID(), app)
		candidate.VersionName = entry.Release.Version
		candidate.VersionCode = apk.VersionCode
		candidate.Changelog = entry.Release.WhatsNew
		candidate.Link = api.Link{Type: api.LinkTypeMirrorPage, URL: p.baseURL + apk.Link}

		return candidate, nil
	}

	return nil, ErrNoUpdateAvailable
}

// bestMirrorApk picks the APK with the highest version code signed by the installed
// application's key and built for one of the device ABIs. Ties go to the most recent
// publish date, then to response order.
func bestMirrorApk(apks []mirrorApk, app api.InstalledApp, arches []string) *mirrorApk {
	var best *mirrorApk

	for i := range apks {
		apk := &apks[i]

		if !mirrorSignatureMatches(apk, app) || !mirrorArchMatches(apk, arches) {
			continue
		}

		if best == nil || apk.VersionCode > best.VersionCode {
			best = apk

			continue
		}

		if apk.VersionCode == best.VersionCode && parseMirrorDate(apk.PublishDate).After(parseMirrorDate(best.PublishDate)) {
			best = apk
		}
	}

	return best
}

// mirrorArchMatches checks that the APK runs on one of the ABIs. APKs without native code list none.
func mirrorArchMatches(apk *mirrorApk, arches []string) bool {
	if len(apk.Arches) == 0 || len(arches) == 0 {
		return true
	}

	return slices.ContainsFunc(apk.Arches, func(arch string) bool {
		arch = strings.TrimSpace(arch)
		if arch == "universal" || arch == "noarch" {
			return true
		}

		return slices.ContainsFunc(arches, func(a string) bool { return strings.EqualFold(strings.TrimSpace(a), arch) })
	})
}

// defaultArches returns the Android ABIs able to run on the given Go architecture, preferred first.
func defaultArches(goarch string) []string {
	switch goarch {
	case "arm64":
		return []string{"arm64-v8a", "armeabi-v7a", "armeabi"}
	case "arm":
		return []string{"armeabi-v7a", "armeabi"}
	case "amd64":
		return []string{"x86_64", "x86"}
	case "386":
		return []string{"x86"}
	default:
		return nil
	}
}

func mirrorSignatureMatches(apk *mirrorApk, app api.InstalledApp) bool {
	if app.SignatureSHA1 != "" && len(apk.SignaturesSHA1) > 0 {
		return slices.ContainsFunc(apk.SignaturesSHA1, func(s string) bool {
			return strings.EqualFold(s, app.SignatureSHA1)
		})
	}

	if app.SignatureSHA256 != "" && len(apk.SignaturesSHA256) > 0 {
		return slices.ContainsFunc(apk.SignaturesSHA256, func(s string) bool {
			return strings.EqualFold(s, app.SignatureSHA256)
		})
	}

	return true
}

func parseMirrorDate(value string) time.Time {
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t
		}
	}

	return time.Time{}
}

func configValue(config map[string]string, key string, fallback string) string {
	value, ok := config[key]
	if !ok || value == "" {
		return fallback
	}

	return value
}
