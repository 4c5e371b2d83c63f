package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"unicode"

	"github.com/blang/semver/v4"
	"github.com/go-resty/resty/v2"
)

var errUnexpectedStatus = errors.New("unexpected HTTP status")

// checkResponse turns a resty result into an error, mapping rate limiting to ErrProviderUnavailable.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("unable to get http response: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return ErrProviderUnavailable
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status())
	}

	return nil
}

// decodeBody parses a JSON response body.
func decodeBody(resp *resty.Response, target any) error {
	err := json.Unmarshal(resp.Body(), target)
	if err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}

	return nil
}

// filterVersionTag strips any leading non-digit characters from a release tag ("v1.2" becomes "1.2").
func filterVersionTag(tag string) string {
	return strings.TrimLeftFunc(tag, func(r rune) bool {
		return !unicode.IsDigit(r)
	})
}

// versionOrdinal derives a comparable integer from a release tag or version name.
//
// Release tags carry no version code, so both the installed version name and the remote tag
// go through this to end up in the same code space. Pre-releases sort before the release.
func versionOrdinal(version string) (int64, error) {
	v, err := semver.ParseTolerant(filterVersionTag(version))
	if err != nil {
		return 0, fmt.Errorf("unable to parse version %q: %w", version, err)
	}

	if v.Minor > 999 || v.Patch > 999 || v.Major > math.MaxInt64/10_000_000_000 {
		return 0, fmt.Errorf("version %q out of range", version)
	}

	ordinal := int64((v.Major*1000+v.Minor)*1000+v.Patch) * 10 //nolint:gosec
	if len(v.Pre) == 0 {
		ordinal += 9
	}

	return ordinal, nil
}

// toAptoideSHA1 formats a hex SHA-1 the way the Aptoide API reports signatures ("AB:CD:...").
func toAptoideSHA1(sha1 string) string {
	sha1 = strings.ToUpper(strings.ReplaceAll(sha1, ":", ""))

	pairs := make([]string, 0, len(sha1)/2)
	for i := 0; i+1 < len(sha1); i += 2 {
		pairs = append(pairs, sha1[i:i+2])
	}

	return strings.Join(pairs, ":")
}
