package download

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/apkupdater/apkupdaterd/api"
)

// DefaultMaxHops is the number of HTML pages followed before giving up on a mirror page link.
const DefaultMaxHops = 3

// pageSelectors are tried in order on each intermediate page.
var pageSelectors = []string{"a.downloadButton", "a#download-link", "a[rel=nofollow][data-google-vignette=false]"}

var errNoDownloadLink = errors.New("no download link found on page")

// Resolver turns a link into a URL that can be fetched directly.
type Resolver interface {
	Resolve(ctx context.Context, link api.Link) (string, error)
}

// DirectResolver returns the link's URL unchanged.
type DirectResolver struct{}

// Resolve returns the URL of the link.
func (DirectResolver) Resolve(_ context.Context, link api.Link) (string, error) {
	return link.URL, nil
}

// PageResolver follows download buttons on mirror web pages until it reaches the file itself.
type PageResolver struct {
	Client    *http.Client
	UserAgent string
	MaxHops   int
}

// Resolve walks the pages starting at the link's URL.
func (r *PageResolver) Resolve(ctx context.Context, link api.Link) (string, error) {
	maxHops := r.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	current := link.URL

	for range maxHops {
		next, final, err := r.hop(ctx, current)
		if err != nil {
			return "", err
		}

		if final {
			return current, nil
		}

		current = next
	}

	return "", fmt.Errorf("gave up resolving %q after %d pages", link.URL, maxHops)
}

func (r *PageResolver) request(ctx context.Context, method string, pageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create http request: %w", err)
	}

	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get http response: %w", err)
	}

	return resp, nil
}

func isHTML(resp *http.Response) bool {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	return mediaType == "text/html"
}

// hop fetches one page. It reports final when the URL doesn't serve HTML, otherwise it returns the next URL.
//
// Each URL is checked with HEAD first so that the artifact itself is only transferred by the download.
func (r *PageResolver) hop(ctx context.Context, pageURL string) (string, bool, error) {
	resp, err := r.request(ctx, http.MethodHead, pageURL)
	if err == nil {
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusOK && !isHTML(resp) {
			return "", true, nil
		}
	}

	resp, err = r.request(ctx, http.MethodGet, pageURL)
	if err != nil {
		return "", false, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	if !isHTML(resp) {
		return "", true, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", false, err
	}

	for _, selector := range pageSelectors {
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok || href == "" {
			continue
		}

		base, err := url.Parse(pageURL)
		if err != nil {
			return "", false, err
		}

		ref, err := url.Parse(href)
		if err != nil {
			return "", false, err
		}

		return base.ResolveReference(ref).String(), false, nil
	}

	return "", false, errNoDownloadLink
}
