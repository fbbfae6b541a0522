package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/filex"
)

const orphanSuffix = ".orphan"

// FilesystemStore keeps each blob as a file under root. Reads are served
// by the API's blob proxy with capabilities minted by issuer.
type FilesystemStore struct {
	root   string
	issuer Issuer
}

func NewFilesystemStore(root string, issuer Issuer) (*FilesystemStore, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FilesystemStore{root: abs, issuer: issuer}, nil
}

func (s *FilesystemStore) path(ref string) (string, error) {
	if !filepath.IsLocal(ref) || strings.HasSuffix(ref, orphanSuffix) {
		return "", fmt.Errorf("%w: bad storage ref %q", common.ErrValidation, ref)
	}
	return filepath.Join(s.root, filepath.FromSlash(ref)), nil
}

// Put stages the blob next to its target and renames it into place, so a
// crash never leaves a partial blob under ref.
func (s *FilesystemStore) Put(ctx context.Context, ref string, r io.Reader, size int64) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if _, err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return common.StorageError("fs put", err)
	}

	err = filex.WriteAtomic(p, io.LimitReader(r, size+1), func(n int64) error {
		if n != size {
			return fmt.Errorf("%w: expected %d bytes, got %d", common.ErrValidation, size, n)
		}
		return ctx.Err()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrValidation), ctx.Err() != nil:
		return err
	default:
		return common.StorageError("fs put", err)
	}
}

func (s *FilesystemStore) Delete(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.StorageError("fs delete", err)
	}
	if err := os.Remove(p + orphanSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.StorageError("fs delete", err)
	}
	return nil
}

// MarkOrphan drops a marker file next to the blob; SweepOrphans removes
// marked blobs once the marker is old enough.
func (s *FilesystemStore) MarkOrphan(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p+orphanSuffix, nil, 0o600); err != nil {
		return common.StorageError("fs mark orphan", err)
	}
	return nil
}

func (s *FilesystemStore) SweepOrphans(ctx context.Context, before time.Time) (int, error) {
	var removed int
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, orphanSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(before) {
			return nil
		}
		if err := os.Remove(strings.TrimSuffix(p, orphanSuffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, common.StorageError("fs sweep orphans", err)
	}
	return removed, nil
}

func (s *FilesystemStore) Capability(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	return s.issuer.Issue(ref, ttl)
}

func (s *FilesystemStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, common.ErrNotFound
		}
		return nil, 0, common.StorageError("fs open", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, common.StorageError("fs open", err)
	}
	return f, info.Size(), nil
}
