package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize  int64 = 5 << 20
	MaxUploadSize     int64 = 50 << 30
	DefaultSessionTTL       = 24 * time.Hour
)

type UploadState string

const (
	UploadInitialized     UploadState = "initialized"
	UploadInProgress      UploadState = "in_progress"
	UploadReadyToComplete UploadState = "ready_to_complete"
	UploadCompleted       UploadState = "completed"
	UploadExpired         UploadState = "expired"
)

// UploadSession tracks chunked-upload progress toward one MediaFile.
// UploadedChunks is kept sorted and free of duplicates.
type UploadSession struct {
	ID             string
	RoomCode       string
	Filename       string
	MimeType       string
	TotalSize      int64
	ChunkSize      int64
	TotalChunks    int
	UploadedChunks []int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NewUploadSession opens a session at now that expires ttl later.
func NewUploadSession(roomCode, filename, mimeType string, totalSize, chunkSize int64, ttl time.Duration, now time.Time) *UploadSession {
	now = now.UTC()
	return &UploadSession{
		ID:          uuid.NewString(),
		RoomCode:    roomCode,
		Filename:    filename,
		MimeType:    mimeType,
		TotalSize:   totalSize,
		ChunkSize:   chunkSize,
		TotalChunks: TotalChunks(totalSize, chunkSize),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// TotalChunks is ceil(totalSize / chunkSize).
func TotalChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// ExpectedChunkLength is the exact byte length chunk index must have.
func (s *UploadSession) ExpectedChunkLength(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.TotalSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

func (s *UploadSession) ValidIndex(index int) bool {
	return index >= 0 && index < s.TotalChunks
}

func (s *UploadSession) HasChunk(index int) bool {
	_, ok := slices.BinarySearch(s.UploadedChunks, index)
	return ok
}

// MarkChunk records index and reports whether it was new.
func (s *UploadSession) MarkChunk(index int) bool {
	pos, ok := slices.BinarySearch(s.UploadedChunks, index)
	if ok {
		return false
	}
	s.UploadedChunks = slices.Insert(s.UploadedChunks, pos, index)
	return true
}

func (s *UploadSession) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(len(s.UploadedChunks)) / float64(s.TotalChunks) * 100
}

func (s *UploadSession) IsComplete() bool {
	return s.TotalChunks > 0 && len(s.UploadedChunks) == s.TotalChunks
}

func (s *UploadSession) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// State derives the lifecycle state. Completed sessions are deleted, so a
// stored session is never reported as completed.
func (s *UploadSession) State(now time.Time) UploadState {
	switch {
	case s.IsExpired(now):
		return UploadExpired
	case s.IsComplete():
		return UploadReadyToComplete
	case len(s.UploadedChunks) == 0:
		return UploadInitialized
	default:
		return UploadInProgress
	}
}

// MissingChunks lists indices not yet received, in ascending order.
func (s *UploadSession) MissingChunks() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.UploadedChunks))
	for i := 0; i < s.TotalChunks; i++ {
		if !s.HasChunk(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *UploadSession) Clone() *UploadSession {
	if s == nil {
		return nil
	}
	c := *s
	c.UploadedChunks = slices.Clone(s.UploadedChunks)
	return &c
}
