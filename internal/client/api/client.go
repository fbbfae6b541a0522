// Package api is the HTTP client of the lifecycle API. It only ever sends
// ciphertext and nonces; keys stay with the caller.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/apiv1"
	"github.com/dmitrijs2005/securedrop/internal/common"
)

const maxErrorBody = 4096

type UploadRequest struct {
	Ciphertext        []byte
	Nonce             []byte
	Filename          string
	ExpiresInHours    int
	DestroyOnDownload bool
}

type RetrievalInfo struct {
	ID                  string
	DownloadURL         string
	Nonce               []byte
	Filename            string
	DestroyOnDownload   bool
	ExpiresAt           time.Time
	CapabilityExpiresAt time.Time
}

type Client struct {
	base string
	hc   *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// BaseURL is the API root the client talks to.
func (c *Client) BaseURL() string { return c.base }

// HTTPClient is the transport, reused for capability downloads.
func (c *Client) HTTPClient() *http.Client { return c.hc }

func (c *Client) Upload(ctx context.Context, req UploadRequest) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := [][2]string{
		{apiv1.FormNonce, base64.StdEncoding.EncodeToString(req.Nonce)},
		{apiv1.FormFilename, req.Filename},
		{apiv1.FormExpiresInHours, strconv.Itoa(req.ExpiresInHours)},
		{apiv1.FormDestroyOnDownload, strconv.FormatBool(req.DestroyOnDownload)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile(apiv1.FormFile, "blob.enc")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(req.Ciphertext); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out apiv1.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/files", mw.FormDataContentType(), &body, http.StatusCreated, &out); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return out.FileID, nil
}

func (c *Client) Retrieve(ctx context.Context, id string) (*RetrievalInfo, error) {
	var out apiv1.RetrievalResponse
	if err := c.do(ctx, http.MethodGet, filePath(id), "", nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(out.Nonce)
	if err != nil {
		return nil, fmt.Errorf("retrieve: bad nonce in response: %w", err)
	}

	return &RetrievalInfo{
		ID:                  out.FileID,
		DownloadURL:         out.DownloadURL,
		Nonce:               nonce,
		Filename:            out.Filename,
		DestroyOnDownload:   out.DestroyOnDownload,
		ExpiresAt:           out.ExpiresAt,
		CapabilityExpiresAt: out.CapabilityExpiresAt,
	}, nil
}

// Consume reports a completed download.
func (c *Client) Consume(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, filePath(id)+"/consume", "", nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	return nil
}

// Delete asks the server to destroy a share and returns its outcome.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var out apiv1.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, filePath(id), "", nil, http.StatusOK, &out); err != nil {
		return "", fmt.Errorf("delete: %w", err)
	}
	return out.Status, nil
}

func filePath(id string) string {
	return "/api/v1/files/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into the matching sentinel.
func decodeError(resp *http.Response) error {
	var eb apiv1.ErrorBody
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(b, &eb)

	msg := eb.Error.Message
	if msg == "" {
		msg = resp.Status
	}

	switch eb.Error.Code {
	case apiv1.CodeFileTooLarge:
		return fmt.Errorf("%w: %s", common.ErrPayloadTooLarge, msg)
	case apiv1.CodeValidationError:
		return fmt.Errorf("%w: %s", common.ErrValidation, msg)
	case apiv1.CodeNotFound:
		return common.ErrNotFound
	case apiv1.CodeCapabilityExpired:
		return common.ErrCapabilityExpired
	case apiv1.CodeInvalidCapability:
		return common.ErrInvalidCapability
	case apiv1.CodeStorageUnavailable:
		return fmt.Errorf("%w: %s", common.ErrStorageUnavailable, msg)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", common.ErrStorageUnavailable, msg)
	default:
		return fmt.Errorf("unexpected response: %s", msg)
	}
}
