// Package models defines the server-side records of the share lifecycle.
package models

import "time"

// ShareRecord is the metadata of one shared file. The decryption key is
// never part of it.
type ShareRecord struct {
	// ID is a random UUIDv4, never reused.
	ID string
	// Nonce is the 12-byte AEAD nonce, stored in the clear.
	Nonce []byte
	// Filename is the sanitized display name.
	Filename string
	// StorageRef is the object-store key of the ciphertext blob.
	StorageRef string
	SizeBytes  int64
	ExpiresAt  time.Time
	// DestroyOnDownload is fixed at creation.
	DestroyOnDownload bool
	// Consumed flips false→true at most once, and only for one-time shares.
	Consumed  bool
	CreatedAt time.Time
}

// IsExpired reports whether the record is past its expiry at now.
// A record expiring exactly at now is expired.
func (r *ShareRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsRetrievable reports whether GetRetrievalInfo may hand out a capability.
func (r *ShareRecord) IsRetrievable(now time.Time) bool {
	if r.IsExpired(now) {
		return false
	}
	return !(r.DestroyOnDownload && r.Consumed)
}

// Capability is a bounded-lifetime read grant for one blob.
type Capability struct {
	URL       string
	ExpiresAt time.Time
}

// RetrievalInfo is what a recipient needs to fetch and decrypt a share.
type RetrievalInfo struct {
	ID                string
	Nonce             []byte
	Filename          string
	Capability        Capability
	DestroyOnDownload bool
	ExpiresAt         time.Time
}

// DeleteOutcome is the result of an explicit delete request.
type DeleteOutcome string

const (
	DeleteOutcomeDeleted        DeleteOutcome = "deleted"
	DeleteOutcomeKept           DeleteOutcome = "kept"
	DeleteOutcomeAlreadyDeleted DeleteOutcome = "already_deleted"
)
