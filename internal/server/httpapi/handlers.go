// Package httpapi is the HTTP surface of the share lifecycle: upload,
// retrieval info, consumption, deletion, the capability proxy for
// self-hosted blob stores, health and metrics.
package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/securedrop/internal/apiv1"
	"github.com/dmitrijs2005/securedrop/internal/logging"
	sc "github.com/dmitrijs2005/securedrop/internal/server/config"
	"github.com/dmitrijs2005/securedrop/internal/server/models"
	"github.com/dmitrijs2005/securedrop/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const (
	// multipart framing and form fields on top of the ciphertext
	multipartOverhead = 1 << 20
	formMemory        = 1 << 20
)

// Lifecycle is the share service as seen by the handlers.
type Lifecycle interface {
	Create(ctx context.Context, req services.CreateRequest) (string, error)
	GetRetrievalInfo(ctx context.Context, id string) (*models.RetrievalInfo, error)
	Consume(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) (models.DeleteOutcome, error)
}

type Handler struct {
	shares    Lifecycle
	maxUpload int64
	check     func(ctx context.Context) error
	log       logging.Logger
}

func NewHandler(shares Lifecycle, config *sc.Config, check func(ctx context.Context) error, log logging.Logger) *Handler {
	return &Handler{
		shares:    shares,
		maxUpload: config.MaxUploadBytes,
		check:     check,
		log:       log.With("component", "httpapi"),
	}
}

// Upload handles POST /api/v1/files.
//
// Malformed nonce and expiry fields are passed on as invalid values so the
// service reports errors in its usual order, size first.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, apiv1.CodeFileTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUpload))
			return
		}
		WriteError(w, http.StatusBadRequest, apiv1.CodeValidationError, "malformed multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(apiv1.FormFile)
	if err != nil {
		WriteError(w, http.StatusBadRequest, apiv1.CodeValidationError, "field 'file' is required")
		return
	}
	defer file.Close()

	nonce, err := base64.StdEncoding.DecodeString(r.FormValue(apiv1.FormNonce))
	if err != nil {
		nonce = nil
	}

	ttl := apiv1.DefaultExpiresInHours
	if v := r.FormValue(apiv1.FormExpiresInHours); v != "" {
		if ttl, err = strconv.Atoi(v); err != nil {
			ttl = -1
		}
	}

	var destroy bool
	if v := r.FormValue(apiv1.FormDestroyOnDownload); v != "" {
		if destroy, err = strconv.ParseBool(v); err != nil {
			WriteError(w, http.StatusBadRequest, apiv1.CodeValidationError, "destroy_on_download must be true or false")
			return
		}
	}

	filename := r.FormValue(apiv1.FormFilename)
	if filename == "" {
		filename = header.Filename
	}

	id, err := h.shares.Create(r.Context(), services.CreateRequest{
		Ciphertext:        file,
		Size:              header.Size,
		Nonce:             nonce,
		Filename:          filename,
		TTLHours:          ttl,
		DestroyOnDownload: destroy,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, apiv1.UploadResponse{FileID: id})
}

// Retrieve handles GET /api/v1/files/{id}.
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	info, err := h.shares.GetRetrievalInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, apiv1.RetrievalResponse{
		FileID:              info.ID,
		DownloadURL:         info.Capability.URL,
		Nonce:               base64.StdEncoding.EncodeToString(info.Nonce),
		Filename:            info.Filename,
		DestroyOnDownload:   info.DestroyOnDownload,
		ExpiresAt:           info.ExpiresAt,
		CapabilityExpiresAt: info.Capability.ExpiresAt,
	})
}

// Consume handles POST /api/v1/files/{id}/consume.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	if err := h.shares.Consume(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/files/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.shares.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiv1.DeleteResponse{Status: string(outcome)})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		if err := h.check(r.Context()); err != nil {
			h.log.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, apiv1.HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, apiv1.HealthResponse{Status: "online"})
}
