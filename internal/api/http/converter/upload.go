package converter

import (
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/service"
)

type UploadSessionResponse struct {
	SessionID   string    `json:"session_id"`
	RoomCode    string    `json:"room_code"`
	Filename    string    `json:"filename"`
	TotalSize   int64     `json:"total_size"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type UploadProgressResponse struct {
	SessionID       string             `json:"session_id"`
	Accepted        bool               `json:"accepted"`
	ProgressPercent float64            `json:"progress_percent"`
	IsComplete      bool               `json:"is_complete"`
	UploadedChunks  int                `json:"uploaded_chunks"`
	TotalChunks     int                `json:"total_chunks"`
	State           domain.UploadState `json:"state"`
}

type MetadataResponse struct {
	Filename   string   `json:"filename"`
	Size       int64    `json:"size"`
	MimeType   string   `json:"mime_type"`
	Duration   *float64 `json:"duration,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Bitrate    *int64   `json:"bitrate,omitempty"`
}

func UploadSessionToApi(s *domain.UploadSession) *UploadSessionResponse {
	return &UploadSessionResponse{
		SessionID:   s.ID,
		RoomCode:    s.RoomCode,
		Filename:    s.Filename,
		TotalSize:   s.TotalSize,
		ChunkSize:   s.ChunkSize,
		TotalChunks: s.TotalChunks,
		ExpiresAt:   s.ExpiresAt,
	}
}

func ProgressToApi(p *service.UploadProgress) *UploadProgressResponse {
	return &UploadProgressResponse{
		SessionID:       p.SessionID,
		Accepted:        p.Accepted,
		ProgressPercent: p.Progress,
		IsComplete:      p.IsComplete,
		UploadedChunks:  p.UploadedChunks,
		TotalChunks:     p.TotalChunks,
		State:           p.State,
	}
}

func MetadataToApi(m *domain.MediaMetadata) *MetadataResponse {
	return &MetadataResponse{
		Filename:   m.Filename,
		Size:       m.Size,
		MimeType:   m.MimeType,
		Duration:   m.Duration,
		Resolution: m.Resolution,
		Bitrate:    m.Bitrate,
	}
}
