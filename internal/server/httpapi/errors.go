package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/securedrop/internal/apiv1"
	"github.com/dmitrijs2005/securedrop/internal/common"
)

// WriteError writes {"error": {"code": ..., "message": ...}}.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiv1.ErrorBody{
		Error: apiv1.ErrorDetail{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error to a status code and error code.
// Unknown errors are internal; their text is not sent to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, apiv1.CodeFileTooLarge
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, apiv1.CodeValidationError
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, apiv1.CodeNotFound
	case errors.Is(err, common.ErrCapabilityExpired):
		return http.StatusGone, apiv1.CodeCapabilityExpired
	case errors.Is(err, common.ErrInvalidCapability):
		return http.StatusForbidden, apiv1.CodeInvalidCapability
	case errors.Is(err, common.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, apiv1.CodeStorageUnavailable
	default:
		return http.StatusInternalServerError, apiv1.CodeInternalError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	msg := http.StatusText(status)
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		msg = err.Error()
	case http.StatusNotFound:
		msg = "file not found or expired"
	case http.StatusInternalServerError:
		h.log.Error(r.Context(), "request failed", "error", err)
	case http.StatusServiceUnavailable:
		h.log.Warn(r.Context(), "storage unavailable", "error", err)
	}
	WriteError(w, status, code, msg)
}
