package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIssuer struct{}

func (stubIssuer) Issue(ref string, ttl time.Duration) (string, error) {
	return "http://proxy/blobs/" + ref + "?ttl=" + ttl.String(), nil
}

func TestFilesystemStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	st, err := NewFilesystemStore(t.TempDir(), stubIssuer{})
	require.NoError(t, err)

	ref := "shares/2026/01/02/abc"
	require.NoError(t, st.Put(ctx, ref, strings.NewReader("ciphertext"), 10))

	rc, size, err := st.Open(ctx, ref)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, int64(10), size)
	assert.Equal(t, "ciphertext", string(b))

	require.NoError(t, st.Delete(ctx, ref))
	require.NoError(t, st.Delete(ctx, ref), "missing blob delete must succeed")

	_, _, err = st.Open(ctx, ref)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFilesystemStore_ShortWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	st, err := NewFilesystemStore(root, stubIssuer{})
	require.NoError(t, err)

	err = st.Put(ctx, "shares/x", strings.NewReader("abc"), 10)
	require.ErrorIs(t, err, common.ErrValidation)

	entries, err := os.ReadDir(filepath.Join(root, "shares"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilesystemStore_RejectsEscapingRefs(t *testing.T) {
	st, err := NewFilesystemStore(t.TempDir(), stubIssuer{})
	require.NoError(t, err)

	for _, ref := range []string{"../etc/passwd", "/abs", "", "a/b.orphan"} {
		err := st.Put(context.Background(), ref, strings.NewReader("x"), 1)
		assert.ErrorIs(t, err, common.ErrValidation, ref)
	}
}

func TestFilesystemStore_OrphanSweep(t *testing.T) {
	ctx := context.Background()
	st, err := NewFilesystemStore(t.TempDir(), stubIssuer{})
	require.NoError(t, err)

	require.NoError(t, st.Put(ctx, "shares/orphan", strings.NewReader("x"), 1))
	require.NoError(t, st.Put(ctx, "shares/live", strings.NewReader("y"), 1))
	require.NoError(t, st.MarkOrphan(ctx, "shares/orphan"))

	n, err := st.SweepOrphans(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "fresh marks are kept")

	n, err = st.SweepOrphans(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = st.Open(ctx, "shares/orphan")
	require.ErrorIs(t, err, common.ErrNotFound)
	_, _, err = st.Open(ctx, "shares/live")
	require.NoError(t, err)
}

func TestFilesystemStore_CapabilityUsesIssuer(t *testing.T) {
	st, err := NewFilesystemStore(t.TempDir(), stubIssuer{})
	require.NoError(t, err)

	u, err := st.Capability(context.Background(), "shares/a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://proxy/blobs/shares/a?ttl=1m0s", u)
}
