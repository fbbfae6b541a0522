package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/apiv1"
	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, apiv1.ErrorBody{Error: apiv1.ErrorDetail{Code: code, Message: "m"}})
}

func TestUpload_SendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/files", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("nonce-123456")), r.FormValue(apiv1.FormNonce))
		assert.Equal(t, "a.txt", r.FormValue(apiv1.FormFilename))
		assert.Equal(t, "168", r.FormValue(apiv1.FormExpiresInHours))
		assert.Equal(t, "true", r.FormValue(apiv1.FormDestroyOnDownload))

		f, _, err := r.FormFile(apiv1.FormFile)
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(f)
		assert.Equal(t, []byte("ct"), b)

		writeJSON(w, http.StatusCreated, apiv1.UploadResponse{FileID: "id-1"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", srv.Client())
	id, err := c.Upload(context.Background(), UploadRequest{
		Ciphertext:        []byte("ct"),
		Nonce:             []byte("nonce-123456"),
		Filename:          "a.txt",
		ExpiresInHours:    168,
		DestroyOnDownload: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
}

func TestRetrieve_DecodesNonce(t *testing.T) {
	exp := time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/files/id-1", r.URL.Path)
		writeJSON(w, http.StatusOK, apiv1.RetrievalResponse{
			FileID:            "id-1",
			DownloadURL:       "http://blobs/x",
			Nonce:             base64.StdEncoding.EncodeToString([]byte("0123456789ab")),
			Filename:          "a.txt",
			DestroyOnDownload: true,
			ExpiresAt:         exp,
		})
	}))
	defer srv.Close()

	info, err := New(srv.URL, nil).Retrieve(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789ab"), info.Nonce)
	assert.Equal(t, "http://blobs/x", info.DownloadURL)
	assert.True(t, info.DestroyOnDownload)
	assert.True(t, exp.Equal(info.ExpiresAt))
}

func TestConsumeAndDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/files/id-1/consume":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/files/id-1":
			writeJSON(w, http.StatusOK, apiv1.DeleteResponse{Status: "deleted"})
		default:
			writeErr(w, http.StatusNotFound, apiv1.CodeNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	require.NoError(t, c.Consume(context.Background(), "id-1"))
	status, err := c.Delete(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "deleted", status)

	require.ErrorIs(t, c.Consume(context.Background(), "other"), common.ErrNotFound)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"validation", http.StatusBadRequest, apiv1.CodeValidationError, common.ErrValidation},
		{"too large", http.StatusRequestEntityTooLarge, apiv1.CodeFileTooLarge, common.ErrPayloadTooLarge},
		{"not found", http.StatusNotFound, apiv1.CodeNotFound, common.ErrNotFound},
		{"storage", http.StatusServiceUnavailable, apiv1.CodeStorageUnavailable, common.ErrStorageUnavailable},
		{"bare 502", http.StatusBadGateway, "", common.ErrStorageUnavailable},
		{"bare 404", http.StatusNotFound, "", common.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code == "" {
					http.Error(w, "upstream", tt.status)
					return
				}
				writeErr(w, tt.status, tt.code)
			}))
			defer srv.Close()

			_, err := New(srv.URL, nil).Retrieve(context.Background(), "x")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransportErrorIsStorageUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).Retrieve(context.Background(), "x")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(url, nil).Retrieve(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}
