package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
)

// MemoryStore keeps blobs in a map. Orphan marks are recorded with the
// time they were set and swept like the filesystem backend.
type MemoryStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	orphans map[string]time.Time
	issuer  Issuer
	now     func() time.Time
}

func NewMemoryStore(issuer Issuer) *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string][]byte),
		orphans: make(map[string]time.Time),
		issuer:  issuer,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, ref string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, size+1))
	if err != nil {
		return common.StorageError("memory put", err)
	}
	if n != size {
		return fmt.Errorf("%w: expected %d bytes, got %d", common.ErrValidation, size, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = buf.Bytes()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	delete(s.orphans, ref)
	return nil
}

func (s *MemoryStore) MarkOrphan(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; ok {
		s.orphans[ref] = s.now()
	}
	return nil
}

func (s *MemoryStore) SweepOrphans(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for ref, at := range s.orphans {
		if at.Before(before) {
			delete(s.blobs, ref)
			delete(s.orphans, ref)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Capability(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	return s.issuer.Issue(ref, ttl)
}

func (s *MemoryStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[ref]
	if !ok {
		return nil, 0, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

// Has reports whether ref holds a blob.
func (s *MemoryStore) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[ref]
	return ok
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// IsOrphan reports whether ref carries an orphan mark.
func (s *MemoryStore) IsOrphan(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orphans[ref]
	return ok
}
