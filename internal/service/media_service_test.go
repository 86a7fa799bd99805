package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/internal/storage/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		start, end int64
		wantErr    bool
	}{
		{header: "bytes=0-499", start: 0, end: 499},
		{header: "bytes=500-", start: 500, end: 999},
		{header: "bytes=999-999", start: 999, end: 999},
		{header: " bytes=10-20 ", start: 10, end: 20},
		{header: "bytes=0-1000", wantErr: true},
		{header: "bytes=1000-", wantErr: true},
		{header: "bytes=20-10", wantErr: true},
		{header: "bytes=-500", wantErr: true},
		{header: "bytes=0-1,5-9", wantErr: true},
		{header: "items=0-1", wantErr: true},
		{header: "bytes=abc-", wantErr: true},
		{header: "bytes=5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, end, err := ParseRange(tt.header, 1000)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	room := f.createRoom(t, 5)

	_, err := f.media.Stream(ctx, room.Code, "")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no media yet")

	_, err = f.uploads.UploadDirect(ctx, host, room.Code, "movie.mp4", "video/mp4", int64(len(movie)), strings.NewReader(movie))
	require.NoError(t, err)

	t.Run("whole file", func(t *testing.T) {
		stream, err := f.media.Stream(ctx, room.Code, "")
		require.NoError(t, err)
		defer stream.Body.Close()

		body, err := io.ReadAll(stream.Body)
		require.NoError(t, err)
		assert.False(t, stream.Partial)
		assert.Equal(t, movie, string(body))
		assert.Equal(t, int64(10), stream.ContentLength)
		assert.Empty(t, stream.ContentRange)
	})

	t.Run("open ended range", func(t *testing.T) {
		stream, err := f.media.Stream(ctx, room.Code, "bytes=7-")
		require.NoError(t, err)
		defer stream.Body.Close()

		body, err := io.ReadAll(stream.Body)
		require.NoError(t, err)
		assert.Equal(t, "789", string(body))
		assert.Equal(t, "bytes 7-9/10", stream.ContentRange)
		assert.Equal(t, int64(3), stream.ContentLength)
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		_, err := f.media.Stream(ctx, room.Code, "bytes=10-")
		require.ErrorIs(t, err, domain.ErrInvalidRange)

		var rangeErr *RangeError
		require.True(t, errors.As(err, &rangeErr))
		assert.Equal(t, int64(10), rangeErr.Size)
	})

	t.Run("independent readers", func(t *testing.T) {
		a, err := f.media.Stream(ctx, room.Code, "bytes=0-4")
		require.NoError(t, err)
		defer a.Body.Close()
		b, err := f.media.Stream(ctx, room.Code, "bytes=5-9")
		require.NoError(t, err)
		defer b.Body.Close()

		bodyB, err := io.ReadAll(b.Body)
		require.NoError(t, err)
		bodyA, err := io.ReadAll(a.Body)
		require.NoError(t, err)
		assert.Equal(t, "01234", string(bodyA))
		assert.Equal(t, "56789", string(bodyB))
	})
}

func TestStreamBodyReleasedOnCancel(t *testing.T) {
	f := newFixture(t, 4)
	room := f.createRoom(t, 5)
	_, err := f.uploads.UploadDirect(t.Context(), host, room.Code, "movie.mp4", "video/mp4", int64(len(movie)), strings.NewReader(movie))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	stream, err := f.media.Stream(ctx, room.Code, "")
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := stream.Body.Read(make([]byte, 1))
		return err != nil
	}, time.Second, 10*time.Millisecond)
	assert.NoError(t, stream.Body.Close(), "closing after release is harmless")
}

func TestStreamCancelWaitsForInFlightRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDownloadStream(ctrl)
	ctx, cancel := context.WithCancel(t.Context())

	var reading atomic.Bool
	entered := make(chan struct{})
	released := make(chan struct{})

	ds.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		reading.Store(true)
		close(entered)
		<-ctx.Done()
		// Leave room for a concurrent Close to run if nothing holds it back.
		time.Sleep(20 * time.Millisecond)
		reading.Store(false)
		return 0, ctx.Err()
	})
	ds.EXPECT().Close().DoAndReturn(func() error {
		assert.False(t, reading.Load(), "stream closed while a read was in flight")
		close(released)
		return nil
	})

	body := newRangeBody(ctx, ds, 10)
	errc := make(chan error, 1)
	go func() {
		_, err := body.Read(make([]byte, 4))
		errc <- err
	}()

	<-entered
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("stream not released after cancellation")
	}

	_, err := body.Read(make([]byte, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, body.Close())
}

func TestStreamBodyClosedBeforeCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDownloadStream(ctrl)
	ds.EXPECT().Close().Return(nil).Times(1)

	ctx, cancel := context.WithCancel(t.Context())
	body := newRangeBody(ctx, ds, 10)
	require.NoError(t, body.Close())
	cancel()

	_, err := body.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.NoError(t, body.Close())
}

func TestMetadataNotCachedAcrossConcurrentDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	bucket := mocks.NewMockBucket(ctrl)
	f := newFixtureWithBucket(t, bucket, 4)
	ctx := t.Context()

	const code = "ROOM-0000CAFE"
	stale := storage.FileInfo{
		ID:       "blob-1",
		Name:     storage.BlobName(code, "movie.mp4"),
		Length:   10,
		Metadata: storage.Metadata{RoomCode: code, OriginalName: "movie.mp4", IsStreamable: true},
	}
	streamable := storage.Filter{RoomCode: code, StreamableOnly: true}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	gomock.InOrder(
		bucket.EXPECT().Find(gomock.Any(), streamable).DoAndReturn(func(context.Context, storage.Filter) ([]storage.FileInfo, error) {
			close(entered)
			<-proceed
			return []storage.FileInfo{stale}, nil
		}),
		bucket.EXPECT().Find(gomock.Any(), streamable).Return(nil, nil),
	)
	bucket.EXPECT().Find(gomock.Any(), storage.Filter{RoomCode: code}).Return([]storage.FileInfo{stale}, nil)
	bucket.EXPECT().Delete(gomock.Any(), stale.ID).Return(nil)

	lookup := make(chan error, 1)
	go func() {
		_, err := f.media.Metadata(ctx, code)
		lookup <- err
	}()

	<-entered
	require.NoError(t, f.chunks.DeleteBlobByRoom(ctx, code))
	close(proceed)
	require.NoError(t, <-lookup)

	_, err := f.media.Metadata(ctx, code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManifest(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	room := f.createRoom(t, 5)

	_, err := f.media.Manifest(ctx, room.Code)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.uploads.UploadDirect(ctx, host, room.Code, "movie.mp4", "video/mp4", 3, strings.NewReader("abc"))
	require.NoError(t, err)

	manifest, err := f.media.Manifest(ctx, room.Code)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(manifest, "#EXTM3U\n"))
	assert.Contains(t, manifest, "/api/rooms/"+room.Code+"/stream/segment/1")
	assert.True(t, strings.HasSuffix(manifest, "#EXT-X-ENDLIST"))
}
