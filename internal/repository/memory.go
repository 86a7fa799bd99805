package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
)

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[string]*domain.Room),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Code]; ok {
		return ErrRoomCodeExists
	}

	r.rooms[room.Code] = room.Clone()
	return nil
}

func (r *InMemoryRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room.Clone(), nil
}

func (r *InMemoryRoomRepository) AddParticipant(ctx context.Context, code string, p domain.Participant) (*domain.Room, error) {
	return r.mutate(ctx, code, func(room *domain.Room) error {
		_, err := room.AddParticipant(p)
		return err
	})
}

func (r *InMemoryRoomRepository) RemoveParticipant(ctx context.Context, code string, userID string) (*domain.Room, error) {
	return r.mutate(ctx, code, func(room *domain.Room) error {
		room.RemoveParticipant(userID)
		return nil
	})
}

func (r *InMemoryRoomRepository) UpdatePlayback(ctx context.Context, code string, currentTime float64, isPlaying bool) (*domain.Room, error) {
	return r.mutate(ctx, code, func(room *domain.Room) error {
		if !room.IsActive {
			return domain.ErrRoomInactive
		}
		room.CurrentTime = currentTime
		room.IsPlaying = isPlaying
		return nil
	})
}

func (r *InMemoryRoomRepository) SetMediaFile(ctx context.Context, code string, media *domain.MediaFile) (*domain.Room, error) {
	return r.mutate(ctx, code, func(room *domain.Room) error {
		if media == nil {
			room.MediaFile = nil
			return nil
		}
		m := *media
		m.ChunkIDs = slices.Clone(media.ChunkIDs)
		room.MediaFile = &m
		return nil
	})
}

func (r *InMemoryRoomRepository) End(ctx context.Context, code string, at time.Time) (*domain.Room, bool, error) {
	var changed bool
	room, err := r.mutate(ctx, code, func(room *domain.Room) error {
		changed = room.End(at)
		return nil
	})
	return room, changed, err
}

func (r *InMemoryRoomRepository) Delete(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[code]; !ok {
		return ErrRoomNotFound
	}

	delete(r.rooms, code)
	return nil
}

func (r *InMemoryRoomRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0)
	for _, room := range r.rooms {
		if room.HostID == userID || room.HasParticipant(userID) {
			result = append(result, room.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *InMemoryRoomRepository) ListEndedBefore(ctx context.Context, before time.Time) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0)
	for _, room := range r.rooms {
		if !room.IsActive && room.EndedAt != nil && room.EndedAt.Before(before) {
			result = append(result, room.Clone())
		}
	}
	return result, nil
}

func (r *InMemoryRoomRepository) mutate(ctx context.Context, code string, fn func(room *domain.Room) error) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room := stored.Clone()
	if err := fn(room); err != nil {
		return nil, err
	}

	r.rooms[code] = room
	return room.Clone(), nil
}

type InMemoryUploadSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.UploadSession
}

func NewInMemoryUploadSessionRepository() *InMemoryUploadSessionRepository {
	return &InMemoryUploadSessionRepository{
		sessions: make(map[string]*domain.UploadSession),
	}
}

func (r *InMemoryUploadSessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return ErrSessionExists
	}

	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *InMemoryUploadSessionRepository) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (r *InMemoryUploadSessionRepository) MarkChunk(ctx context.Context, id string, index int) (*domain.UploadSession, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, false, ErrSessionNotFound
	}

	added := session.MarkChunk(index)
	return session.Clone(), added, nil
}

func (r *InMemoryUploadSessionRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}

	delete(r.sessions, id)
	return nil
}

func (r *InMemoryUploadSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.UploadSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.UploadSession, 0)
	for _, session := range r.sessions {
		if session.IsExpired(now) {
			result = append(result, session.Clone())
		}
	}
	return result, nil
}
