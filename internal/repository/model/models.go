package model

import (
	"time"

	"gorm.io/datatypes"
)

type Room struct {
	Code            string        `gorm:"size:16;primaryKey"`
	Name            string        `gorm:"size:255;not null"`
	Description     string        `gorm:"size:2000"`
	HostID          string        `gorm:"size:128;index;not null"`
	IsActive        bool          `gorm:"index;not null"`
	IsPrivate       bool          `gorm:"not null"`
	MaxParticipants int           `gorm:"not null"`
	CurrentTime     float64       `gorm:"column:playback_time;not null"`
	IsPlaying       bool          `gorm:"not null"`
	CreatedAt       time.Time     `gorm:"index;not null"`
	EndedAt         *time.Time    `gorm:"index"`
	Participants    []Participant `gorm:"foreignKey:RoomCode;references:Code;constraint:OnDelete:CASCADE"`
	MediaFile       *MediaFile    `gorm:"foreignKey:RoomCode;references:Code;constraint:OnDelete:CASCADE"`
}

// Participant rows keep join order through their auto-increment id.
type Participant struct {
	ID          uint      `gorm:"primaryKey"`
	RoomCode    string    `gorm:"size:16;uniqueIndex:idx_participants_room_user;not null"`
	UserID      string    `gorm:"size:128;uniqueIndex:idx_participants_room_user;index;not null"`
	DisplayName string    `gorm:"size:255;not null"`
	AvatarRef   string    `gorm:"size:1024"`
	JoinedAt    time.Time `gorm:"not null"`
	IsHost      bool      `gorm:"not null"`
}

type MediaFile struct {
	RoomCode     string         `gorm:"size:16;primaryKey"`
	BlobID       string         `gorm:"size:64;not null"`
	Filename     string         `gorm:"size:1024;not null"`
	OriginalName string         `gorm:"size:1024;not null"`
	Size         int64          `gorm:"not null"`
	MimeType     string         `gorm:"size:64;not null"`
	UploadedAt   time.Time      `gorm:"not null"`
	ChunkIDs     datatypes.JSON
}

type UploadSession struct {
	ID          string        `gorm:"size:36;primaryKey"`
	RoomCode    string        `gorm:"size:16;index;not null"`
	Filename    string        `gorm:"size:1024;not null"`
	MimeType    string        `gorm:"size:64;not null"`
	TotalSize   int64         `gorm:"not null"`
	ChunkSize   int64         `gorm:"not null"`
	TotalChunks int           `gorm:"not null"`
	CreatedAt   time.Time     `gorm:"not null"`
	ExpiresAt   time.Time     `gorm:"index;not null"`
	Chunks      []UploadChunk `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE"`
}

type UploadChunk struct {
	SessionID  string    `gorm:"size:36;primaryKey"`
	ChunkIndex int       `gorm:"primaryKey;autoIncrement:false"`
	ReceivedAt time.Time `gorm:"not null"`
}

func All() []any {
	return []any{&Room{}, &Participant{}, &MediaFile{}, &UploadSession{}, &UploadChunk{}}
}
