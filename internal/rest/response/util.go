package response

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ErrETagMismatch is returned when the If-Match header doesn't match the current resource.
var ErrETagMismatch = errors.New("ETag doesn't match")

// etagHash hashes the provided data and returns the sha256.
func etagHash(data any) (string, error) {
	etag := sha256.New()
	err := json.NewEncoder(etag).Encode(data)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(etag.Sum(nil)), nil
}

// EtagCheck validates the request's If-Match header, if any, against the current resource.
func EtagCheck(r *http.Request, current any) error {
	match := strings.Trim(r.Header.Get("If-Match"), "\"")
	if match == "" {
		return nil
	}

	hash, err := etagHash(current)
	if err != nil {
		return err
	}

	if hash != match {
		return ErrETagMismatch
	}

	return nil
}
