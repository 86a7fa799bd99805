package service

import (
	"strings"
	"testing"
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()

	room, err := f.rooms.CreateRoom(ctx, host, domain.RoomOptions{Name: "  Movie Night  "})
	require.NoError(t, err)
	assert.Regexp(t, `^ROOM-[0-9A-F]{8}$`, room.Code)
	assert.Equal(t, "Movie Night", room.Name)
	assert.Equal(t, host.UserID, room.HostID)
	assert.Equal(t, domain.DefaultMaxParticipants, room.MaxParticipants)
	require.Len(t, room.Participants, 1)
	assert.True(t, room.Participants[0].IsHost)
	assert.True(t, room.IsActive)

	_, err = f.rooms.CreateRoom(ctx, host, domain.RoomOptions{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.rooms.CreateRoom(ctx, host, domain.RoomOptions{Name: "x", MaxParticipants: 101})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.rooms.CreateRoom(ctx, host, domain.RoomOptions{Name: strings.Repeat("x", 256)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.rooms.CreateRoom(ctx, domain.Identity{}, domain.RoomOptions{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRoomCapacity(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	room := f.createRoom(t, 2)

	joined, err := f.rooms.AddParticipant(ctx, room.Code, guest)
	require.NoError(t, err)
	assert.Len(t, joined.Participants, 2)

	again, err := f.rooms.AddParticipant(ctx, room.Code, guest)
	require.NoError(t, err, "re-joining is idempotent")
	assert.Len(t, again.Participants, 2)

	_, err = f.rooms.AddParticipant(ctx, room.Code, domain.Identity{UserID: "late"})
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	_, err = f.rooms.AddParticipant(ctx, "ROOM-NOPE0000", guest)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLastLeaveEndsRoomAndDropsMedia(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	room := f.createRoom(t, 5)

	_, err := f.rooms.AddParticipant(ctx, room.Code, guest)
	require.NoError(t, err)
	_, err = f.uploads.UploadDirect(ctx, host, room.Code, "movie.mp4", "video/mp4", 3, strings.NewReader("abc"))
	require.NoError(t, err)

	after, err := f.rooms.RemoveParticipant(ctx, room.Code, host.UserID)
	require.NoError(t, err)
	assert.True(t, after.IsActive, "room survives while someone is left")
	assert.Equal(t, host.UserID, after.HostID, "host does not move")

	after, err = f.rooms.RemoveParticipant(ctx, room.Code, guest.UserID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)
	assert.NotNil(t, after.EndedAt)
	assert.Nil(t, after.MediaFile)

	blobs, err := f.bucket.Find(ctx, storage.Filter{RoomCode: room.Code})
	require.NoError(t, err)
	assert.Empty(t, blobs)

	_, err = f.rooms.AddParticipant(ctx, room.Code, guest)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEndRoomAs(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	room := f.createRoom(t, 5)
	_, err := f.rooms.AddParticipant(ctx, room.Code, guest)
	require.NoError(t, err)

	_, err = f.rooms.EndRoomAs(ctx, room.Code, guest)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	ended, err := f.rooms.EndRoomAs(ctx, room.Code, host)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	endedAt := *ended.EndedAt

	again, err := f.rooms.EndRoom(ctx, room.Code)
	require.NoError(t, err, "ending twice is a no-op")
	assert.Equal(t, endedAt, *again.EndedAt)

	_, err = f.rooms.UpdateVideoState(ctx, room.Code, 10, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateVideoStateLastWriterWins(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	room := f.createRoom(t, 5)

	_, err := f.rooms.UpdateVideoState(ctx, room.Code, 42, true)
	require.NoError(t, err)
	got, err := f.rooms.UpdateVideoState(ctx, room.Code, 7.5, false)
	require.NoError(t, err)
	assert.Equal(t, 7.5, got.CurrentTime)
	assert.False(t, got.IsPlaying)
}

func TestCleanupOldRooms(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	active := f.createRoom(t, 5)
	old := f.createRoom(t, 5)

	_, err := f.rooms.EndRoom(ctx, old.Code)
	require.NoError(t, err)

	purged, err := f.rooms.CleanupOldRooms(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged, "inside the retention window")

	f.rooms.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	purged, err = f.rooms.CleanupOldRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = f.rooms.GetRoom(ctx, old.Code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.rooms.GetRoom(ctx, active.Code)
	assert.NoError(t, err)
}

func TestListUserRooms(t *testing.T) {
	f := newFixture(t, 4)
	ctx := t.Context()
	first := f.createRoom(t, 5)
	second := f.createRoom(t, 5)
	_, err := f.rooms.AddParticipant(ctx, first.Code, guest)
	require.NoError(t, err)

	hosted, err := f.rooms.ListUserRooms(ctx, host.UserID)
	require.NoError(t, err)
	assert.Len(t, hosted, 2)

	joined, err := f.rooms.ListUserRooms(ctx, guest.UserID)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, first.Code, joined[0].Code)
	assert.NotEqual(t, second.Code, joined[0].Code)
}
