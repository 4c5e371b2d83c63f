package providers

import (
	"context"
	"strings"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
)

const gitlabURL = "https://gitlab.com"

// The Gitlab source, looking at the releases of a project mapped to the package.
type gitlab struct {
	client *Client
	config map[string]string

	baseURL string
}

type gitlabRelease struct {
	TagName         string           `json:"tag_name"`
	Description     string           `json:"description"`
	UpcomingRelease bool             `json:"upcoming_release"`
	ReleasedAt      time.Time        `json:"released_at"`
	Assets          gitlabAssetLinks `json:"assets"`
}

type gitlabAssetLinks struct {
	Links []gitlabLink `json:"links"`
}

type gitlabLink struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	DirectAssetURL string `json:"direct_asset_url"`
}

func (*gitlab) ID() api.SourceID {
	return api.SourceGitLab
}

func (*gitlab) ClearCache(_ context.Context) error {
	return nil
}

func (p *gitlab) load(_ context.Context) error {
	p.baseURL = strings.TrimSuffix(configValue(p.config, "base_url", gitlabURL), "/")

	return nil
}

func (p *gitlab) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	candidate, err := p.lookup(ctx, app)

	return candidate, lookupError(p.ID(), app, err)
}

func (p *gitlab) lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	owner, repo, ok := repositoryFor(p.config, app.PackageName)
	if !ok {
		return nil, ErrNoUpdateAvailable
	}

	req, err := p.client.Request(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	if p.config["token"] != "" {
		req.SetHeader("PRIVATE-TOKEN", p.config["token"])
	}

	resp, err := req.
		SetPathParam("project", owner+"/"+repo).
		Get(p.baseURL + "/api/v4/projects/{project}/releases")

	err = checkResponse(resp, err)
	if err != nil {
		return nil, err
	}

	var releases []gitlabRelease

	err = decodeBody(resp, &releases)
	if err != nil {
		return nil, err
	}

	usable := make([]tagRelease, 0, len(releases))

	for _, release := range releases {
		if release.UpcomingRelease {
			continue
		}

		for _, link := range release.Assets.Links {
			if !strings.HasSuffix(strings.ToLower(link.Name), ".apk") && !strings.HasSuffix(strings.ToLower(link.URL), ".apk") {
				continue
			}

			target := link.DirectAssetURL
			if target == "" {
				target = link.URL
			}

			usable = append(usable, tagRelease{
				tag:       release.TagName,
				changelog: release.Description,
				link:      api.Link{Type: api.LinkTypeURL, URL: target},
				published: release.ReleasedAt,
			})

			break
		}
	}

	newest, ok := newestRelease(usable)
	if !ok {
		return nil, ErrNoUpdateAvailable
	}

	return tagCandidate(p.ID(), app, newest.tag, newest.changelog, newest.link)
}
