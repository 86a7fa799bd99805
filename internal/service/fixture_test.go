package service

import (
	"testing"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/require"
)

var (
	host  = domain.Identity{UserID: "host-1", DisplayName: "Host"}
	guest = domain.Identity{UserID: "guest-1", DisplayName: "Guest"}
)

type fixture struct {
	bucket   storage.Bucket
	roomRepo *repository.InMemoryRoomRepository
	sessRepo *repository.InMemoryUploadSessionRepository
	chunks   *ChunkStore
	rooms    *RoomService
	uploads  *UploadService
	media    *MediaService
}

func newFixture(t *testing.T, chunkSize int64) *fixture {
	t.Helper()
	bucket, err := storage.NewFSBucket(t.TempDir())
	require.NoError(t, err)
	return newFixtureWithBucket(t, bucket, chunkSize)
}

func newFixtureWithBucket(t *testing.T, bucket storage.Bucket, chunkSize int64) *fixture {
	t.Helper()
	log := slogdiscard.NewDiscardLogger()

	f := &fixture{
		bucket:   bucket,
		roomRepo: repository.NewInMemoryRoomRepository(),
		sessRepo: repository.NewInMemoryUploadSessionRepository(),
	}

	chunks, err := NewChunkStore(bucket, f.sessRepo, log, ChunkStoreOptions{CopyBuffer: 3})
	require.NoError(t, err)
	f.chunks = chunks
	f.rooms = NewRoomService(f.roomRepo, chunks, RoomConfig{}, log)
	f.uploads = NewUploadService(f.sessRepo, f.roomRepo, chunks, UploadConfig{ChunkSize: chunkSize}, log)
	f.media = NewMediaService(chunks, log)
	return f
}

func (f *fixture) createRoom(t *testing.T, maxParticipants int) *domain.Room {
	t.Helper()
	room, err := f.rooms.CreateRoom(t.Context(), host, domain.RoomOptions{
		Name:            "Movie Night",
		MaxParticipants: maxParticipants,
	})
	require.NoError(t, err)
	return room
}
