package repository

import (
	"context"
	"errors"
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomCodeExists  = errors.New("room code already exists")
	ErrSessionNotFound = errors.New("upload session not found")
	ErrSessionExists   = errors.New("upload session already exists")
)

// RoomRepository persists rooms. Membership, playback and lifecycle changes
// are narrow atomic updates, so concurrent callers never overwrite each
// other's unrelated fields.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	// AddParticipant appends p under the room's capacity rule. Re-joining is a no-op.
	AddParticipant(ctx context.Context, code string, p domain.Participant) (*domain.Room, error)
	RemoveParticipant(ctx context.Context, code string, userID string) (*domain.Room, error)
	UpdatePlayback(ctx context.Context, code string, currentTime float64, isPlaying bool) (*domain.Room, error)
	SetMediaFile(ctx context.Context, code string, media *domain.MediaFile) (*domain.Room, error)
	// End marks the room inactive and reports whether this call changed it.
	End(ctx context.Context, code string, at time.Time) (*domain.Room, bool, error)
	Delete(ctx context.Context, code string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Room, error)
	ListEndedBefore(ctx context.Context, before time.Time) ([]*domain.Room, error)
}

type UploadSessionRepository interface {
	Create(ctx context.Context, session *domain.UploadSession) error
	Get(ctx context.Context, id string) (*domain.UploadSession, error)
	// MarkChunk records index and reports whether it was new.
	MarkChunk(ctx context.Context, id string, index int) (*domain.UploadSession, bool, error)
	Delete(ctx context.Context, id string) error
	ListExpired(ctx context.Context, now time.Time) ([]*domain.UploadSession, error)
}
