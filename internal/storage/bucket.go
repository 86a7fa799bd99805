package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrStreamClosed = errors.New("stream already closed")
)

// Metadata is attached to every stored file and is what Find filters on.
type Metadata struct {
	SessionID    string `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	ChunkIndex   *int   `json:"chunkIndex,omitempty" bson:"chunkIndex,omitempty"`
	RoomCode     string `json:"roomCode,omitempty" bson:"roomCode,omitempty"`
	OriginalName string `json:"originalName,omitempty" bson:"originalName,omitempty"`
	MimeType     string `json:"mimetype,omitempty" bson:"mimetype,omitempty"`
	TotalSize    int64  `json:"totalSize,omitempty" bson:"totalSize,omitempty"`
	IsStreamable bool   `json:"isStreamable,omitempty" bson:"isStreamable,omitempty"`
}

type FileInfo struct {
	ID         string
	Name       string
	Length     int64
	UploadedAt time.Time
	Metadata   Metadata
}

// Filter selects files by exact match on every non-zero field.
type Filter struct {
	Name           string
	SessionID      string
	RoomCode       string
	StreamableOnly bool
}

// UploadStream is an append-then-seal writer: the file becomes visible to
// Find and OpenDownloadStream only after Close succeeds.
type UploadStream interface {
	io.Writer
	FileID() string
	Close() error
	Abort() error
}

// DownloadStream reads one stored file. Each call to OpenDownloadStream
// yields an independent handle.
type DownloadStream interface {
	io.ReadCloser
	Skip(n int64) (int64, error)
	Length() int64
}

//go:generate mockgen -source=bucket.go -destination=mocks/mock_bucket.go -package=mocks

// Bucket is durable blob storage addressed by opaque file id.
type Bucket interface {
	OpenUploadStream(ctx context.Context, name string, meta Metadata) (UploadStream, error)
	OpenDownloadStream(ctx context.Context, id string) (DownloadStream, error)
	Find(ctx context.Context, filter Filter) ([]FileInfo, error)
	Delete(ctx context.Context, id string) error
}

func ChunkName(sessionID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", sessionID, index)
}

func BlobName(roomCode, filename string) string {
	return roomCode + "_" + filename
}

func (f Filter) matches(name string, meta Metadata) bool {
	if f.Name != "" && f.Name != name {
		return false
	}
	if f.SessionID != "" && f.SessionID != meta.SessionID {
		return false
	}
	if f.RoomCode != "" && f.RoomCode != meta.RoomCode {
		return false
	}
	if f.StreamableOnly && !meta.IsStreamable {
		return false
	}
	return true
}
