package broker

import (
	"bytes"
	"io"
	"testing"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/service"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchPartyScenario(t *testing.T) {
	const (
		chunkSize = 5 << 20
		totalSize = 10 << 20
	)
	ctx := t.Context()
	log := slogdiscard.NewDiscardLogger()
	u1 := domain.Identity{UserID: "u1", DisplayName: "U1"}
	u2 := domain.Identity{UserID: "u2", DisplayName: "U2"}

	bucket, err := storage.NewFSBucket(t.TempDir())
	require.NoError(t, err)
	roomRepo := repository.NewInMemoryRoomRepository()
	sessionRepo := repository.NewInMemoryUploadSessionRepository()
	chunks, err := service.NewChunkStore(bucket, sessionRepo, log, service.ChunkStoreOptions{})
	require.NoError(t, err)
	rooms := service.NewRoomService(roomRepo, chunks, service.RoomConfig{}, log)
	uploads := service.NewUploadService(sessionRepo, roomRepo, chunks, service.UploadConfig{ChunkSize: chunkSize}, log)
	media := service.NewMediaService(chunks, log)
	b := New(rooms, log, Options{})

	room, err := rooms.CreateRoom(ctx, u1, domain.RoomOptions{Name: "Movie Night", MaxParticipants: 2})
	require.NoError(t, err)
	require.Len(t, room.Participants, 1)
	assert.Zero(t, room.CurrentTime)
	assert.False(t, room.IsPlaying)

	file := make([]byte, totalSize)
	for i := range file {
		file[i] = byte(i % 251)
	}

	session, err := uploads.CreateSession(ctx, u1, room.Code, "x.mp4", totalSize, "video/mp4")
	require.NoError(t, err)
	require.Equal(t, 2, session.TotalChunks)

	_, err = uploads.UploadChunk(ctx, session.ID, 1, bytes.NewReader(file[chunkSize:]))
	require.NoError(t, err)
	progress, err := uploads.UploadChunk(ctx, session.ID, 0, bytes.NewReader(file[:chunkSize]))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, progress.Progress, 1e-9)
	assert.True(t, progress.IsComplete)

	_, err = uploads.Complete(ctx, u1, session.ID)
	require.NoError(t, err)
	_, err = uploads.Progress(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "session is deleted")

	room, err = rooms.AddParticipant(ctx, room.Code, u2)
	require.NoError(t, err)
	assert.Len(t, room.Participants, 2)
	require.NotNil(t, room.MediaFile)

	whole, err := media.Stream(ctx, room.Code, "")
	require.NoError(t, err)
	got, err := io.ReadAll(whole.Body)
	require.NoError(t, err)
	require.NoError(t, whole.Body.Close())
	assert.True(t, bytes.Equal(file, got), "blob is chunk 0 followed by chunk 1")

	part, err := media.Stream(ctx, room.Code, "bytes=0-1048575")
	require.NoError(t, err)
	got, err = io.ReadAll(part.Body)
	require.NoError(t, err)
	require.NoError(t, part.Body.Close())
	assert.Len(t, got, 1<<20)
	assert.Equal(t, "bytes 0-1048575/10485760", part.ContentRange)

	c1, err := b.Connect(u1)
	require.NoError(t, err)
	c2, err := b.Connect(u2)
	require.NoError(t, err)
	for _, c := range []*Conn{c1, c2} {
		b.Handle(ctx, c, domain.SignalMessage{Type: domain.EventJoinRoom, Room: room.Code})
	}
	drain(c1)
	drain(c2)

	b.Handle(ctx, c1, domain.SignalMessage{
		Type:    domain.EventVideoControl,
		Room:    room.Code,
		Payload: []byte(`{"action":"play","currentTime":0}`),
	})
	for _, c := range []*Conn{c1, c2} {
		msg := recv(t, c)
		require.Equal(t, domain.EventVideoControl, msg.Type)
		payload := decode[domain.ControlPayload](t, msg)
		assert.Equal(t, domain.ActionPlay, payload.Action)
		assert.Zero(t, *payload.CurrentTime)
		assert.True(t, *payload.IsPlaying)
	}

	room, err = rooms.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.True(t, room.IsPlaying)
}
