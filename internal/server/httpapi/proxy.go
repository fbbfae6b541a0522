package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	"github.com/go-chi/chi/v5"
)

// Verifier resolves a capability token to the storage ref it grants.
type Verifier interface {
	Verify(token string) (string, error)
}

// BlobProxy serves GET /blobs/{token} for stores that cannot presign
// URLs themselves. It streams ciphertext and never inspects it.
type BlobProxy struct {
	verifier Verifier
	blobs    blobstore.Opener
	log      logging.Logger
}

func NewBlobProxy(verifier Verifier, blobs blobstore.Opener, log logging.Logger) *BlobProxy {
	return &BlobProxy{
		verifier: verifier,
		blobs:    blobs,
		log:      log.With("component", "blob_proxy"),
	}
}

func (p *BlobProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ref, err := p.verifier.Verify(chi.URLParam(r, "token"))
	if err != nil {
		status, code := statusFor(err)
		WriteError(w, status, code, http.StatusText(status))
		return
	}

	rc, size, err := p.blobs.Open(r.Context(), ref)
	if err != nil {
		status, code := statusFor(err)
		if status >= 500 {
			p.log.Warn(r.Context(), "blob open failed", "error", err)
		}
		WriteError(w, status, code, http.StatusText(status))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		p.log.Debug(r.Context(), "blob stream interrupted", "error", err)
	}
}

