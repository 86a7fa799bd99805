package domain

import "time"

// MediaFile is the streamable blob currently attached to a room.
type MediaFile struct {
	BlobID       string
	Filename     string
	OriginalName string
	Size         int64
	MimeType     string
	UploadedAt   time.Time
	ChunkIDs     []string
}

// MediaMetadata describes a room's blob without opening it. Duration,
// resolution and bitrate stay unset until something inspects the media.
type MediaMetadata struct {
	Filename   string
	Size       int64
	MimeType   string
	Duration   *float64
	Resolution string
	Bitrate    *int64
}

// AllowedVideoMimeTypes is the default set accepted for uploads.
var AllowedVideoMimeTypes = []string{
	"video/mp4",
	"video/avi",
	"video/mkv",
	"video/mov",
	"video/wmv",
	"video/webm",
}
