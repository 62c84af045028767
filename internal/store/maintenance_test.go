package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGarbageCollect_NoBlobs(t *testing.T) {
	st := newTestStore(t, Options{})

	result, err := st.GC(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, result.BlobsScanned)
	assert.Equal(t, 0, result.BlobsDeleted)
	assert.Equal(t, 0, result.ReferencedBlobs)
}

func TestGarbageCollect_AllReferenced(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{})

	_, err := st.Put(ctx, []byte("one"))
	require.NoError(t, err)
	_, err = st.Put(ctx, []byte("one"))
	require.NoError(t, err)

	result, err := st.GC(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.BlobsScanned)
	assert.Equal(t, 0, result.BlobsDeleted)
	assert.Equal(t, 1, result.ReferencedBlobs)
}

func TestGarbageCollect_DeletesUnreferenced(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{})

	kept, err := st.Put(ctx, []byte("referenced blob"))
	require.NoError(t, err)
	orphan, err := st.blobs.Put(ctx, []byte("orphan blob"))
	require.NoError(t, err)

	dry, err := st.GC(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 1, dry.BlobsDeleted)

	has, err := st.blobs.Has(ctx, orphan)
	require.NoError(t, err)
	assert.True(t, has, "dry run must not delete")

	result, err := st.GC(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.BlobsScanned)
	assert.Equal(t, 1, result.BlobsDeleted)
	assert.Equal(t, 1, result.ReferencedBlobs)

	has, err = st.blobs.Has(ctx, orphan)
	require.NoError(t, err)
	assert.False(t, has)

	data, err := st.Cat(ctx, kept.Hash.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("referenced blob"), data)
}

func TestVerify_Clean(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{})

	for _, p := range []string{"a", "b", "a"} {
		_, err := st.Put(ctx, []byte(p))
		require.NoError(t, err)
	}

	report, err := st.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 3, report.FramesChecked)
	assert.Equal(t, 2, report.BlobsChecked)
}

func TestVerify_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{})

	missing, err := st.Put(ctx, []byte("will be deleted"))
	require.NoError(t, err)
	corrupt, err := st.Put(ctx, []byte("will be corrupted"))
	require.NoError(t, err)
	_, err = st.Put(ctx, []byte("fine"))
	require.NoError(t, err)

	require.NoError(t, st.blobs.Delete(ctx, missing.Hash))
	require.NoError(t, os.WriteFile(blobFile(t, st, corrupt.Hash), []byte("x"), 0644))

	report, err := st.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Problems, 2)

	assert.Equal(t, missing.ID, report.Problems[0].Frame.ID)
	assert.ErrorIs(t, report.Problems[0].Err, ErrNotFound)
	assert.Equal(t, corrupt.ID, report.Problems[1].Frame.ID)
	assert.ErrorIs(t, report.Problems[1].Err, ErrIntegrity)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Algorithm: integrity.BLAKE3})

	_, err := st.Put(ctx, []byte("abcd"))
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.Root(), stats.Root)
	assert.Equal(t, integrity.BLAKE3, stats.Algorithm)
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, 1, stats.Blobs)
	assert.Equal(t, int64(4), stats.BlobBytes)
}

func TestGarbageCollect_RemovesLeftoverTempFiles(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{})

	f, err := st.Put(ctx, []byte("kept"))
	require.NoError(t, err)

	leftover := filepath.Join(filepath.Dir(blobFile(t, st, f.Hash)), ".blob-crashed")
	require.NoError(t, os.WriteFile(leftover, []byte("half a blob"), 0644))

	dry, err := st.GC(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.TempFiles)
	assert.FileExists(t, leftover)

	result, err := st.GC(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TempFiles)
	assert.Equal(t, 0, result.BlobsDeleted)
	assert.NoFileExists(t, leftover)

	data, err := st.Cat(ctx, f.Hash.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}
