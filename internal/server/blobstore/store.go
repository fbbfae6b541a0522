// Package blobstore holds ciphertext blobs. Blobs are opaque: the store
// never sees keys or plaintext and cannot tell two files apart by content.
package blobstore

import (
	"context"
	"io"
	"time"
)

// Store is the object store behind the share lifecycle.
type Store interface {
	// Put writes exactly size bytes from r under ref.
	Put(ctx context.Context, ref string, r io.Reader, size int64) error
	// Delete removes ref. Deleting a missing blob succeeds.
	Delete(ctx context.Context, ref string) error
	// MarkOrphan flags ref for reclamation by the store's own expiry
	// mechanism. Used when an immediate Delete of an unreferenced blob failed.
	MarkOrphan(ctx context.Context, ref string) error
	// Capability returns a URL that grants read access to ref for ttl.
	Capability(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// Opener is implemented by stores whose capabilities are served by the
// API's blob proxy rather than by the store itself.
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
}

// OrphanSweeper is implemented by stores that have no native expiry for
// orphan-marked blobs; the reaper calls it periodically.
type OrphanSweeper interface {
	SweepOrphans(ctx context.Context, before time.Time) (int, error)
}

// Issuer mints proxy capability URLs; see capability.Signer.
type Issuer interface {
	Issue(ref string, ttl time.Duration) (string, error)
}
