package storage

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a live MongoDB, e.g. TEST_MONGO_URI=mongodb://localhost:27017.
func newTestGridFS(t *testing.T) *GridFSBucket {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	db := "watchparty_test_" + uuid.NewString()[:8]
	b, err := NewGridFSBucket(context.Background(), GridFSConfig{
		URI:            uri,
		Database:       db,
		Bucket:         "movies",
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = b.client.Database(db).Drop(ctx)
		_ = b.Close(ctx)
	})
	return b
}

func TestGridFSBucket(t *testing.T) {
	b := newTestGridFS(t)
	ctx := context.Background()

	zero, one := 0, 1
	c0 := put(t, b, ChunkName("s1", 0), "0123", Metadata{SessionID: "s1", ChunkIndex: &zero})
	put(t, b, ChunkName("s1", 1), "45", Metadata{SessionID: "s1", ChunkIndex: &one})
	blob := put(t, b, BlobName("ROOM-1", "x.mp4"), "0123456789", Metadata{RoomCode: "ROOM-1", IsStreamable: true, MimeType: "video/mp4"})

	chunks, err := b.Find(ctx, Filter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[0].Metadata.ChunkIndex)

	streamable, err := b.Find(ctx, Filter{RoomCode: "ROOM-1", StreamableOnly: true})
	require.NoError(t, err)
	require.Len(t, streamable, 1)
	assert.Equal(t, "video/mp4", streamable[0].Metadata.MimeType)

	down, err := b.OpenDownloadStream(ctx, blob)
	require.NoError(t, err)
	defer down.Close()
	assert.Equal(t, int64(10), down.Length())
	_, err = down.Skip(6)
	require.NoError(t, err)
	rest, err := io.ReadAll(down)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(rest))

	require.NoError(t, b.Delete(ctx, c0))
	assert.ErrorIs(t, b.Delete(ctx, c0), ErrFileNotFound)
	_, err = b.OpenDownloadStream(ctx, c0)
	assert.ErrorIs(t, err, ErrFileNotFound)
}
