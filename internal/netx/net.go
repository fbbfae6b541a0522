// Package netx fetches ciphertext directly from the object store using a
// short-lived read capability, bypassing the Lifecycle API.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/securedrop/internal/common"
)

// maxErrorBody bounds how much of an error response is read for classification.
const maxErrorBody = 4096

// FetchCapability GETs url and returns the response body, which must not
// exceed limit bytes; a larger body yields common.ErrPayloadTooLarge.
//
// Failures are classified so callers can react differently:
//   - 410, or an S3 403 "Request has expired": common.ErrCapabilityExpired
//   - any other 403: common.ErrInvalidCapability
//   - 404: common.ErrNotFound
//   - 5xx or a transport error: common.ErrStorageUnavailable
func FetchCapability(ctx context.Context, hc *http.Client, url string, limit int64) ([]byte, error) {
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch ciphertext: %w: %w", common.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return readLimited(resp, limit)
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, classify(resp.StatusCode, b)
}

func readLimited(resp *http.Response, limit int64) ([]byte, error) {
	tooLarge := fmt.Errorf("read ciphertext: %w: more than %d bytes", common.ErrPayloadTooLarge, limit)
	if resp.ContentLength > limit {
		return nil, tooLarge
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read ciphertext: %w: %w", common.ErrStorageUnavailable, err)
	}
	if int64(len(body)) > limit {
		return nil, tooLarge
	}
	return body, nil
}

func classify(status int, body []byte) error {
	switch {
	case status == http.StatusGone:
		return fmt.Errorf("fetch ciphertext: %w", common.ErrCapabilityExpired)
	case status == http.StatusForbidden:
		// S3 answers expired presigned URLs with 403 AccessDenied and this message.
		if bytes.Contains(body, []byte("Request has expired")) {
			return fmt.Errorf("fetch ciphertext: %w", common.ErrCapabilityExpired)
		}
		return fmt.Errorf("fetch ciphertext: %w", common.ErrInvalidCapability)
	case status == http.StatusNotFound:
		return fmt.Errorf("fetch ciphertext: %w", common.ErrNotFound)
	case status >= 500:
		return fmt.Errorf("fetch ciphertext: %w: status %d", common.ErrStorageUnavailable, status)
	default:
		return fmt.Errorf("fetch ciphertext: unexpected status %d", status)
	}
}
