package converter

import (
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
)

type RoomResponse struct {
	Code            string                `json:"code"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	HostID          string                `json:"host_id"`
	Participants    []ParticipantResponse `json:"participants"`
	MediaFile       *MediaFileResponse    `json:"media_file,omitempty"`
	IsActive        bool                  `json:"is_active"`
	IsPrivate       bool                  `json:"is_private"`
	MaxParticipants int                   `json:"max_participants"`
	CurrentTime     float64               `json:"current_time"`
	IsPlaying       bool                  `json:"is_playing"`
	CreatedAt       time.Time             `json:"created_at"`
	EndedAt         *time.Time            `json:"ended_at,omitempty"`
}

type ParticipantResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	IsHost      bool      `json:"is_host"`
}

type MediaFileResponse struct {
	BlobID       string    `json:"blob_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	participants := make([]ParticipantResponse, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, ParticipantResponse{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarRef:   p.AvatarRef,
			JoinedAt:    p.JoinedAt,
			IsHost:      p.IsHost,
		})
	}

	return &RoomResponse{
		Code:            r.Code,
		Name:            r.Name,
		Description:     r.Description,
		HostID:          r.HostID,
		Participants:    participants,
		MediaFile:       MediaFileToApi(r.MediaFile),
		IsActive:        r.IsActive,
		IsPrivate:       r.IsPrivate,
		MaxParticipants: r.MaxParticipants,
		CurrentTime:     r.CurrentTime,
		IsPlaying:       r.IsPlaying,
		CreatedAt:       r.CreatedAt,
		EndedAt:         r.EndedAt,
	}
}

func RoomsToApi(rooms []*domain.Room) []*RoomResponse {
	out := make([]*RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomToApi(r))
	}
	return out
}

func MediaFileToApi(m *domain.MediaFile) *MediaFileResponse {
	if m == nil {
		return nil
	}
	return &MediaFileResponse{
		BlobID:       m.BlobID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		Size:         m.Size,
		MimeType:     m.MimeType,
		UploadedAt:   m.UploadedAt,
	}
}
