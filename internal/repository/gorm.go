package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRoomRepository works against postgres and sqlite alike.
type GormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	roomModel, err := toModelRoom(room)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(roomModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomCodeExists
		}
		return err
	}
	return nil
}

func (r *GormRoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.load(r.db.WithContext(ctx), code, false)
}

func (r *GormRoomRepository) AddParticipant(ctx context.Context, code string, p domain.Participant) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := r.load(tx, code, true)
		if err != nil {
			return err
		}

		added, err := room.AddParticipant(p)
		if err != nil {
			return err
		}
		if added {
			last := room.Participants[len(room.Participants)-1]
			if err := tx.Create(toModelParticipant(code, last)).Error; err != nil {
				return err
			}
		}

		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *GormRoomRepository) RemoveParticipant(ctx context.Context, code string, userID string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := r.load(tx, code, true)
		if err != nil {
			return err
		}

		if room.RemoveParticipant(userID) {
			err := tx.Where("room_code = ? AND user_id = ?", code, userID).
				Delete(&model.Participant{}).Error
			if err != nil {
				return err
			}
		}

		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *GormRoomRepository) UpdatePlayback(ctx context.Context, code string, currentTime float64, isPlaying bool) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Room{}).
			Where("code = ? AND is_active = ?", code, true).
			Updates(map[string]any{
				"playback_time": currentTime,
				"is_playing":    isPlaying,
			})
		if res.Error != nil {
			return res.Error
		}

		room, err := r.load(tx, code, false)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 && !room.IsActive {
			return domain.ErrRoomInactive
		}

		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *GormRoomRepository) SetMediaFile(ctx context.Context, code string, media *domain.MediaFile) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.load(tx, code, true); err != nil {
			return err
		}

		if media == nil {
			if err := tx.Where("room_code = ?", code).Delete(&model.MediaFile{}).Error; err != nil {
				return err
			}
		} else {
			mediaModel, err := toModelMediaFile(code, media)
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "room_code"}},
				UpdateAll: true,
			}).Create(mediaModel).Error
			if err != nil {
				return err
			}
		}

		room, err := r.load(tx, code, false)
		if err != nil {
			return err
		}
		result = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *GormRoomRepository) End(ctx context.Context, code string, at time.Time) (*domain.Room, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		result  *domain.Room
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := r.load(tx, code, true)
		if err != nil {
			return err
		}

		if changed = room.End(at); changed {
			err := tx.Model(&model.Room{}).Where("code = ?", code).Updates(map[string]any{
				"is_active":  false,
				"is_playing": false,
				"ended_at":   room.EndedAt,
			}).Error
			if err != nil {
				return err
			}
		}

		result = room
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (r *GormRoomRepository) Delete(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_code = ?", code).Delete(&model.Participant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_code = ?", code).Delete(&model.MediaFile{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&model.Room{}, "code = ?", code)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
}

func (r *GormRoomRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	memberOf := r.db.Model(&model.Participant{}).Select("room_code").Where("user_id = ?", userID)

	query := r.preloaded(r.db.WithContext(ctx)).
		Where("host_id = ? OR code IN (?)", userID, memberOf).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rooms []model.Room
	if err := query.Find(&rooms).Error; err != nil {
		return nil, err
	}
	return toDomainRooms(rooms)
}

func (r *GormRoomRepository) ListEndedBefore(ctx context.Context, before time.Time) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.Room
	err := r.preloaded(r.db.WithContext(ctx)).
		Where("is_active = ? AND ended_at IS NOT NULL AND ended_at < ?", false, before.UTC()).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return toDomainRooms(rooms)
}

func (r *GormRoomRepository) preloaded(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("MediaFile")
}

// load reads one room; forUpdate takes a row lock where the dialect has one.
func (r *GormRoomRepository) load(db *gorm.DB, code string, forUpdate bool) (*domain.Room, error) {
	query := r.preloaded(db)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var room model.Room
	if err := query.First(&room, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room)
}

type GormUploadSessionRepository struct {
	db *gorm.DB
}

func NewGormUploadSessionRepository(db *gorm.DB) *GormUploadSessionRepository {
	return &GormUploadSessionRepository{db: db}
}

func (r *GormUploadSessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == nil {
		return errors.New("session is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelSession(session)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSessionExists
		}
		return err
	}
	return nil
}

func (r *GormUploadSessionRepository) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.load(r.db.WithContext(ctx), id)
}

func (r *GormUploadSessionRepository) MarkChunk(ctx context.Context, id string, index int) (*domain.UploadSession, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		result *domain.UploadSession
		added  bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.load(tx, id); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UploadChunk{
			SessionID:  id,
			ChunkIndex: index,
			ReceivedAt: time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected > 0

		session, err := r.load(tx, id)
		if err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, added, nil
}

func (r *GormUploadSessionRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.UploadChunk{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&model.UploadSession{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

func (r *GormUploadSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.UploadSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessions []model.UploadSession
	err := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB {
			return db.Order("chunk_index ASC")
		}).
		Where("expires_at < ?", now.UTC()).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.UploadSession, 0, len(sessions))
	for i := range sessions {
		result = append(result, toDomainSession(&sessions[i]))
	}
	return result, nil
}

func (r *GormUploadSessionRepository) load(db *gorm.DB, id string) (*domain.UploadSession, error) {
	var session model.UploadSession
	err := db.
		Preload("Chunks", func(db *gorm.DB) *gorm.DB {
			return db.Order("chunk_index ASC")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return toDomainSession(&session), nil
}

func toModelRoom(room *domain.Room) (*model.Room, error) {
	participants := make([]model.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, *toModelParticipant(room.Code, p))
	}

	var media *model.MediaFile
	if room.MediaFile != nil {
		m, err := toModelMediaFile(room.Code, room.MediaFile)
		if err != nil {
			return nil, err
		}
		media = m
	}

	var endedAt *time.Time
	if room.EndedAt != nil {
		t := room.EndedAt.UTC()
		endedAt = &t
	}

	return &model.Room{
		Code:            room.Code,
		Name:            room.Name,
		Description:     room.Description,
		HostID:          room.HostID,
		IsActive:        room.IsActive,
		IsPrivate:       room.IsPrivate,
		MaxParticipants: room.MaxParticipants,
		CurrentTime:     room.CurrentTime,
		IsPlaying:       room.IsPlaying,
		CreatedAt:       room.CreatedAt.UTC(),
		EndedAt:         endedAt,
		Participants:    participants,
		MediaFile:       media,
	}, nil
}

func toModelParticipant(code string, p domain.Participant) *model.Participant {
	joinedAt := p.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	return &model.Participant{
		RoomCode:    code,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
		JoinedAt:    joinedAt.UTC(),
		IsHost:      p.IsHost,
	}
}

func toModelMediaFile(code string, m *domain.MediaFile) (*model.MediaFile, error) {
	chunkIDs := m.ChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	raw, err := json.Marshal(chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("encode chunk ids: %w", err)
	}

	return &model.MediaFile{
		RoomCode:     code,
		BlobID:       m.BlobID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		Size:         m.Size,
		MimeType:     m.MimeType,
		UploadedAt:   m.UploadedAt.UTC(),
		ChunkIDs:     datatypes.JSON(raw),
	}, nil
}

func toDomainRoom(room *model.Room) (*domain.Room, error) {
	participants := make([]domain.Participant, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, domain.Participant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarRef:   p.AvatarRef,
			JoinedAt:    p.JoinedAt.UTC(),
			IsHost:      p.IsHost,
		})
	}

	var media *domain.MediaFile
	if room.MediaFile != nil {
		var chunkIDs []string
		if len(room.MediaFile.ChunkIDs) > 0 {
			if err := json.Unmarshal(room.MediaFile.ChunkIDs, &chunkIDs); err != nil {
				return nil, fmt.Errorf("decode chunk ids: %w", err)
			}
		}
		media = &domain.MediaFile{
			BlobID:       room.MediaFile.BlobID,
			Filename:     room.MediaFile.Filename,
			OriginalName: room.MediaFile.OriginalName,
			Size:         room.MediaFile.Size,
			MimeType:     room.MediaFile.MimeType,
			UploadedAt:   room.MediaFile.UploadedAt.UTC(),
			ChunkIDs:     chunkIDs,
		}
	}

	var endedAt *time.Time
	if room.EndedAt != nil {
		t := room.EndedAt.UTC()
		endedAt = &t
	}

	return &domain.Room{
		Code:            room.Code,
		Name:            room.Name,
		Description:     room.Description,
		HostID:          room.HostID,
		Participants:    participants,
		MediaFile:       media,
		IsActive:        room.IsActive,
		IsPrivate:       room.IsPrivate,
		MaxParticipants: room.MaxParticipants,
		CurrentTime:     room.CurrentTime,
		IsPlaying:       room.IsPlaying,
		CreatedAt:       room.CreatedAt.UTC(),
		EndedAt:         endedAt,
	}, nil
}

func toDomainRooms(rooms []model.Room) ([]*domain.Room, error) {
	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		room, err := toDomainRoom(&rooms[i])
		if err != nil {
			return nil, err
		}
		result = append(result, room)
	}
	return result, nil
}

func toModelSession(s *domain.UploadSession) *model.UploadSession {
	chunks := make([]model.UploadChunk, 0, len(s.UploadedChunks))
	for _, idx := range s.UploadedChunks {
		chunks = append(chunks, model.UploadChunk{
			SessionID:  s.ID,
			ChunkIndex: idx,
			ReceivedAt: time.Now().UTC(),
		})
	}

	return &model.UploadSession{
		ID:          s.ID,
		RoomCode:    s.RoomCode,
		Filename:    s.Filename,
		MimeType:    s.MimeType,
		TotalSize:   s.TotalSize,
		ChunkSize:   s.ChunkSize,
		TotalChunks: s.TotalChunks,
		CreatedAt:   s.CreatedAt.UTC(),
		ExpiresAt:   s.ExpiresAt.UTC(),
		Chunks:      chunks,
	}
}

func toDomainSession(s *model.UploadSession) *domain.UploadSession {
	uploaded := make([]int, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		uploaded = append(uploaded, c.ChunkIndex)
	}

	return &domain.UploadSession{
		ID:             s.ID,
		RoomCode:       s.RoomCode,
		Filename:       s.Filename,
		MimeType:       s.MimeType,
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		TotalChunks:    s.TotalChunks,
		UploadedChunks: uploaded,
		CreatedAt:      s.CreatedAt.UTC(),
		ExpiresAt:      s.ExpiresAt.UTC(),
	}
}
