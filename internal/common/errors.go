// Package common defines sentinel errors and small helpers shared by the
// securedrop server, cleanup worker and client. Callers should use errors.Is
// to match these values; wrapped errors keep the sentinel in their chain.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any storage write.
	// Validation failures are reported to the caller and never retried.
	ErrValidation = errors.New("validation error")
	// ErrPayloadTooLarge is a validation failure for oversized ciphertext.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrValidation)

	// ErrNotFound covers unknown, expired and already-consumed shares alike.
	ErrNotFound = errors.New("not found")

	// ErrIDConflict is returned when an identifier was already used
	// within the expiry horizon.
	ErrIDConflict = errors.New("identifier already used")

	// Capability errors. An expired capability is surfaced distinctly so the
	// client can re-request retrieval info instead of assuming the file is gone.
	ErrCapabilityExpired = errors.New("capability expired")
	ErrInvalidCapability = errors.New("invalid capability")

	// ErrStorageUnavailable is a transient object or metadata store failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDecryptionFailed means the authentication tag did not verify:
	// wrong key or corrupted ciphertext. It must not be retried with the same inputs.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// StorageError wraps a backend failure so that it matches ErrStorageUnavailable
// while keeping the original cause in the chain.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
