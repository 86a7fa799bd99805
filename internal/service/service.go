package service

import (
	"context"
	"io"

	"github.com/immxrtalbeast/watchparty/internal/domain"
)

type RoomInteractor interface {
	CreateRoom(ctx context.Context, host domain.Identity, opts domain.RoomOptions) (*domain.Room, error)
	GetRoom(ctx context.Context, code string) (*domain.Room, error)
	AddParticipant(ctx context.Context, code string, who domain.Identity) (*domain.Room, error)
	RemoveParticipant(ctx context.Context, code string, userID string) (*domain.Room, error)
	UpdateVideoState(ctx context.Context, code string, currentTime float64, isPlaying bool) (*domain.Room, error)
	EndRoom(ctx context.Context, code string) (*domain.Room, error)
	EndRoomAs(ctx context.Context, code string, caller domain.Identity) (*domain.Room, error)
	ListUserRooms(ctx context.Context, userID string) ([]*domain.Room, error)
}

type UploadInteractor interface {
	CreateSession(ctx context.Context, caller domain.Identity, roomCode, filename string, totalSize int64, mimeType string) (*domain.UploadSession, error)
	UploadChunk(ctx context.Context, sessionID string, index int, body io.Reader) (*UploadProgress, error)
	Progress(ctx context.Context, sessionID string) (*UploadProgress, error)
	Complete(ctx context.Context, caller domain.Identity, sessionID string) (*domain.MediaFile, error)
	UploadDirect(ctx context.Context, caller domain.Identity, roomCode, filename, mimeType string, size int64, body io.Reader) (*domain.MediaFile, error)
}

type MediaInteractor interface {
	Metadata(ctx context.Context, roomCode string) (*domain.MediaMetadata, error)
	Stream(ctx context.Context, roomCode, rangeHeader string) (*MediaStream, error)
	Manifest(ctx context.Context, roomCode string) (string, error)
}
