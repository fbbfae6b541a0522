package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(stubIssuer{})

	var _ Store = st
	var _ Opener = st
	var _ OrphanSweeper = st

	require.NoError(t, st.Put(ctx, "a", strings.NewReader("hello"), 5))
	require.ErrorIs(t, st.Put(ctx, "b", strings.NewReader("hello!"), 5), common.ErrValidation)
	assert.True(t, st.Has("a"))
	assert.False(t, st.Has("b"))

	rc, n, err := st.Open(ctx, "a")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, st.MarkOrphan(ctx, "a"))
	assert.True(t, st.IsOrphan("a"))
	swept, err := st.SweepOrphans(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Zero(t, st.Len())

	require.NoError(t, st.Delete(ctx, "a"))
	_, _, err = st.Open(ctx, "a")
	require.ErrorIs(t, err, common.ErrNotFound)
}
