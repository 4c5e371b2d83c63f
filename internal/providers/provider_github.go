package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	ghapi "github.com/google/go-github/v72/github"

	"github.com/apkupdater/apkupdaterd/api"
)

// The Github source, looking at the releases of a repository mapped to the package.
type github struct {
	gh     *ghapi.Client
	client *Client

	config      map[string]string
	prereleases bool
}

func (*github) ID() api.SourceID {
	return api.SourceGitHub
}

func (*github) ClearCache(_ context.Context) error {
	return nil
}

func (p *github) load(_ context.Context) error {
	// Setup the Github client.
	p.gh = ghapi.NewClient(p.client.HTTPClient())
	if p.client.UserAgent() != "" {
		p.gh.UserAgent = p.client.UserAgent()
	}

	if p.config["token"] != "" {
		p.gh = p.gh.WithAuthToken(p.config["token"])
	}

	if p.config["base_url"] != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(p.config["base_url"], "/") + "/")
		if err != nil {
			return err
		}

		p.gh.BaseURL = baseURL
	}

	p.prereleases = p.config["prereleases"] == "true"

	return nil
}

func (*github) checkLimit(err error) error {
	var rateErr *ghapi.RateLimitError

	var abuseErr *ghapi.AbuseRateLimitError

	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return ErrProviderUnavailable
	}

	return err
}

func (p *github) Lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	candidate, err := p.lookup(ctx, app)

	return candidate, lookupError(p.ID(), app, err)
}

func (p *github) lookup(ctx context.Context, app api.InstalledApp) (*api.UpdateCandidate, error) {
	owner, repo, ok := repositoryFor(p.config, app.PackageName)
	if !ok {
		return nil, ErrNoUpdateAvailable
	}

	err := p.client.Wait(ctx, p.ID())
	if err != nil {
		return nil, err
	}

	releases, _, err := p.gh.Repositories.ListReleases(ctx, owner, repo, &ghapi.ListOptions{PerPage: 20})
	if err != nil {
		return nil, p.checkLimit(err)
	}

	usable := make([]tagRelease, 0, len(releases))

	for _, release := range releases {
		if release.GetDraft() || (release.GetPrerelease() && !p.prereleases) {
			continue
		}

		for _, asset := range release.Assets {
			if strings.HasSuffix(strings.ToLower(asset.GetName()), ".apk") {
				usable = append(usable, tagRelease{
					tag:       release.GetTagName(),
					changelog: release.GetBody(),
					link:      api.Link{Type: api.LinkTypeURL, URL: asset.GetBrowserDownloadURL()},
					published: release.GetPublishedAt().Time,
				})

				break
			}
		}
	}

	release, ok := newestRelease(usable)
	if !ok {
		return nil, ErrNoUpdateAvailable
	}

	return tagCandidate(p.ID(), app, release.tag, release.changelog, release.link)
}

// repositoryFor returns the repository configured for the package under "repo.<package>".
func repositoryFor(config map[string]string, packageName string) (string, string, bool) {
	value := config["repo."+packageName]
	if value == "" {
		return "", "", false
	}

	idx := strings.LastIndex(value, "/")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", false
	}

	return value[:idx], value[idx+1:], true
}

// tagRelease is a forge release carrying an APK asset.
type tagRelease struct {
	tag       string
	changelog string
	link      api.Link
	published time.Time
}

// newestRelease returns the release with the highest version, the most recently published one on ties.
// Tags that aren't versions are skipped.
func newestRelease(releases []tagRelease) (tagRelease, bool) {
	var (
		best        tagRelease
		bestOrdinal int64
		found       bool
	)

	for _, release := range releases {
		ordinal, err := versionOrdinal(release.tag)
		if err != nil {
			continue
		}

		if !found || ordinal > bestOrdinal || (ordinal == bestOrdinal && release.published.After(best.published)) {
			best = release
			bestOrdinal = ordinal
			found = true
		}
	}

	return best, found
}

// tagCandidate builds a candidate from a release tag, comparing it against the installed version name.
func tagCandidate(source api.SourceID, app api.InstalledApp, tag string, changelog string, link api.Link) (*api.UpdateCandidate, error) {
	remote, err := versionOrdinal(tag)
	if err != nil {
		return nil, err
	}

	installed, err := versionOrdinal(app.VersionName)
	if err != nil {
		return nil, fmt.Errorf("installed version: %w", err)
	}

	if remote <= installed {
		return nil, ErrNoUpdateAvailable
	}

	candidate := newCandidate(source, app)
	candidate.VersionName = filterVersionTag(tag)
	candidate.VersionCode = remote
	candidate.OldVersionCode = installed
	candidate.Changelog = changelog
	candidate.Link = link

	return candidate, nil
}
