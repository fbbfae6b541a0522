// Package apiv1 holds the JSON wire types of the /api/v1 HTTP surface,
// shared by the server handlers and the client.
package apiv1

import "time"

const (
	FormFile              = "file"
	FormNonce             = "nonce"
	FormFilename          = "filename"
	FormExpiresInHours    = "expires_in_hours"
	FormDestroyOnDownload = "destroy_on_download"

	DefaultExpiresInHours = 24
)

// Error codes carried in ErrorBody.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeNotFound           = "NOT_FOUND"
	CodeCapabilityExpired  = "CAPABILITY_EXPIRED"
	CodeInvalidCapability  = "INVALID_CAPABILITY"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

type UploadResponse struct {
	FileID string `json:"file_id"`
}

// RetrievalResponse describes how to fetch and decrypt a share. Nonce is
// standard base64.
type RetrievalResponse struct {
	FileID              string    `json:"file_id"`
	DownloadURL         string    `json:"download_url"`
	Nonce               string    `json:"nonce"`
	Filename            string    `json:"filename"`
	DestroyOnDownload   bool      `json:"destroy_on_download"`
	ExpiresAt           time.Time `json:"expires_at"`
	CapabilityExpiresAt time.Time `json:"capability_expires_at"`
}

type DeleteResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
