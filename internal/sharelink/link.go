// Package sharelink encodes and parses share links. The file id travels in
// the path, the decryption key only in the URL fragment, which browsers and
// HTTP clients never send to a server.
package sharelink

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/cryptox"
)

const downloadPrefix = "/d/"

var ErrMalformedLink = fmt.Errorf("%w: malformed share link", common.ErrValidation)

// Link is a parsed share link.
type Link struct {
	// Base is the API base URL the link was issued by.
	Base string
	ID   string
	Key  []byte
}

// Build returns "<base>/d/<id>#<base64url(key)>".
func Build(base, id string, key []byte) string {
	base = strings.TrimRight(base, "/")
	return base + downloadPrefix + url.PathEscape(id) + "#" + base64.RawURLEncoding.EncodeToString(key)
}

// Parse splits a link produced by Build. The fragment must hold a key of
// cryptox.KeySize bytes.
func Parse(link string) (*Link, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLink, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: missing scheme or host", ErrMalformedLink)
	}

	idx := strings.LastIndex(u.Path, downloadPrefix)
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing %s segment", ErrMalformedLink, downloadPrefix)
	}
	id := strings.Trim(u.Path[idx+len(downloadPrefix):], "/")
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: bad file id", ErrMalformedLink)
	}

	if u.Fragment == "" {
		return nil, errors.Join(ErrMalformedLink, errors.New("missing key fragment"))
	}
	key, err := decodeKey(u.Fragment)
	if err != nil {
		return nil, err
	}

	base := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path[:idx]}
	return &Link{Base: base.String(), ID: id, Key: key}, nil
}

func decodeKey(fragment string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(fragment, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: key is not base64url: %w", ErrMalformedLink, err)
	}
	if len(key) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrMalformedLink, cryptox.KeySize, len(key))
	}
	return key, nil
}
