package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
)

const (
	maxRoomNameLength        = 255
	maxRoomDescriptionLength = 2000
	maxParticipantsLimit     = 100
)

type BlobRemover interface {
	DeleteBlobByRoom(ctx context.Context, roomCode string) error
}

type RoomConfig struct {
	DefaultMaxParticipants int
	Retention              time.Duration
	ListLimit              int
	CodeAttempts           int
}

// RoomService is the registry of rooms: membership, playback state and
// lifecycle.
type RoomService struct {
	rooms repository.RoomRepository
	blobs BlobRemover
	cfg   RoomConfig
	log   *slog.Logger
	now   func() time.Time
}

func NewRoomService(rooms repository.RoomRepository, blobs BlobRemover, cfg RoomConfig, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DefaultMaxParticipants <= 0 {
		cfg.DefaultMaxParticipants = domain.DefaultMaxParticipants
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 10
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 5
	}
	return &RoomService{
		rooms: rooms,
		blobs: blobs,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, host domain.Identity, opts domain.RoomOptions) (*domain.Room, error) {
	const op = "service.room.CreateRoom"
	log := s.log.With(slog.String("op", op), slog.String("host_id", host.UserID))

	if !host.Valid() {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}

	opts.Name = strings.TrimSpace(opts.Name)
	opts.Description = strings.TrimSpace(opts.Description)
	if opts.Name == "" {
		return nil, invalidInput(op, "room name is required")
	}
	if utf8.RuneCountInString(opts.Name) > maxRoomNameLength {
		return nil, invalidInput(op, "room name is too long")
	}
	if utf8.RuneCountInString(opts.Description) > maxRoomDescriptionLength {
		return nil, invalidInput(op, "room description is too long")
	}
	if opts.MaxParticipants == 0 {
		opts.MaxParticipants = s.cfg.DefaultMaxParticipants
	}
	if opts.MaxParticipants < 1 || opts.MaxParticipants > maxParticipantsLimit {
		return nil, invalidInput(op, fmt.Sprintf("maxParticipants must be between 1 and %d", maxParticipantsLimit))
	}

	for attempt := 1; attempt <= s.cfg.CodeAttempts; attempt++ {
		room := domain.NewRoom(host, opts)
		err := s.rooms.Create(ctx, room)
		if errors.Is(err, repository.ErrRoomCodeExists) {
			log.Warn("room code collision, regenerating", slog.String("room_code", room.Code), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			log.Error("failed to create room", sl.Err(err))
			return nil, translate(op, err)
		}

		log.Info("room created", slog.String("room_code", room.Code), slog.String("name", room.Name))
		return room, nil
	}

	return nil, fmt.Errorf("%s: %w: no free room code after %d attempts", op, domain.ErrConflict, s.cfg.CodeAttempts)
}

// GetRoom returns the room in any lifecycle state.
func (s *RoomService) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	const op = "service.room.GetRoom"

	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, translate(op, err)
	}
	return room, nil
}

func (s *RoomService) AddParticipant(ctx context.Context, code string, who domain.Identity) (*domain.Room, error) {
	const op = "service.room.AddParticipant"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_code", code),
		slog.String("user_id", who.UserID),
	)

	if !who.Valid() {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}

	room, err := s.rooms.AddParticipant(ctx, code, domain.NewParticipant(who, false))
	if err != nil {
		log.Info("participant rejected", sl.Err(err))
		return nil, translate(op, err)
	}

	log.Info("participant present", slog.Int("participants", len(room.Participants)))
	return room, nil
}

// RemoveParticipant drops the user from the room. A room left with nobody
// in it is ended.
func (s *RoomService) RemoveParticipant(ctx context.Context, code string, userID string) (*domain.Room, error) {
	const op = "service.room.RemoveParticipant"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_code", code),
		slog.String("user_id", userID),
	)

	room, err := s.rooms.RemoveParticipant(ctx, code, userID)
	if err != nil {
		return nil, translate(op, err)
	}

	if len(room.Participants) == 0 && room.IsActive {
		log.Info("last participant left, ending room")
		return s.EndRoom(ctx, code)
	}

	log.Info("participant removed", slog.Int("participants", len(room.Participants)))
	return room, nil
}

// UpdateVideoState overwrites the room's playback state. Last writer wins.
func (s *RoomService) UpdateVideoState(ctx context.Context, code string, currentTime float64, isPlaying bool) (*domain.Room, error) {
	const op = "service.room.UpdateVideoState"

	room, err := s.rooms.UpdatePlayback(ctx, code, currentTime, isPlaying)
	if err != nil {
		return nil, translate(op, err)
	}

	s.log.Debug("playback updated",
		slog.String("op", op),
		slog.String("room_code", code),
		slog.Float64("current_time", currentTime),
		slog.Bool("is_playing", isPlaying),
	)
	return room, nil
}

// EndRoom deletes the room's media and marks it inactive. Ending an ended
// room is a no-op.
func (s *RoomService) EndRoom(ctx context.Context, code string) (*domain.Room, error) {
	const op = "service.room.EndRoom"
	log := s.log.With(slog.String("op", op), slog.String("room_code", code))

	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, translate(op, err)
	}
	if !room.IsActive {
		return room, nil
	}

	// A blob that survives here is reclaimed by CleanupOldRooms.
	if err := s.blobs.DeleteBlobByRoom(ctx, code); err != nil {
		log.Error("failed to delete room media", sl.Err(err))
	} else if room.MediaFile != nil {
		if _, err := s.rooms.SetMediaFile(ctx, code, nil); err != nil {
			log.Error("failed to detach media file", sl.Err(err))
		}
	}

	room, changed, err := s.rooms.End(ctx, code, s.now())
	if err != nil {
		return nil, translate(op, err)
	}
	if changed {
		log.Info("room ended")
	}
	return room, nil
}

// EndRoomAs ends the room on behalf of caller, who must be its host.
func (s *RoomService) EndRoomAs(ctx context.Context, code string, caller domain.Identity) (*domain.Room, error) {
	const op = "service.room.EndRoomAs"

	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, translate(op, err)
	}
	if !room.IsHost(caller.UserID) {
		return nil, fmt.Errorf("%s: %w: only the host can end the room", op, domain.ErrForbidden)
	}
	return s.EndRoom(ctx, code)
}

// CleanupOldRooms purges rooms that ended more than the retention window
// ago, together with any residual media. Per-room failures are logged and
// skipped.
func (s *RoomService) CleanupOldRooms(ctx context.Context) (int, error) {
	const op = "service.room.CleanupOldRooms"
	log := s.log.With(slog.String("op", op))

	cutoff := s.now().Add(-s.cfg.Retention)
	rooms, err := s.rooms.ListEndedBefore(ctx, cutoff)
	if err != nil {
		return 0, translate(op, err)
	}

	purged := 0
	for _, room := range rooms {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if err := s.blobs.DeleteBlobByRoom(ctx, room.Code); err != nil {
			log.Warn("failed to delete residual media", slog.String("room_code", room.Code), sl.Err(err))
			continue
		}
		if err := s.rooms.Delete(ctx, room.Code); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
			log.Warn("failed to delete room", slog.String("room_code", room.Code), sl.Err(err))
			continue
		}
		purged++
	}

	log.Info("old rooms cleaned up", slog.Int("candidates", len(rooms)), slog.Int("purged", purged))
	return purged, nil
}

// ListUserRooms returns rooms the user hosts or joined, newest first.
func (s *RoomService) ListUserRooms(ctx context.Context, userID string) ([]*domain.Room, error) {
	const op = "service.room.ListUserRooms"

	rooms, err := s.rooms.ListByUser(ctx, userID, s.cfg.ListLimit)
	if err != nil {
		return nil, translate(op, err)
	}
	return rooms, nil
}
