package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
)

const defaultMimeType = "application/octet-stream"

var errBodyReleased = errors.New("media stream released")

// MediaStream is a positioned read of a room's blob plus what the HTTP
// layer needs to answer a (partial) content request.
type MediaStream struct {
	Body          io.ReadCloser
	Partial       bool
	Start         int64
	End           int64
	ContentLength int64
	TotalSize     int64
	ContentRange  string
	ContentType   string
	Filename      string
}

// RangeError is an unsatisfiable range together with the size of the blob it
// was checked against.
type RangeError struct {
	Size int64
	Err  error
}

func (e *RangeError) Error() string { return e.Err.Error() }
func (e *RangeError) Unwrap() error { return e.Err }

// MediaService resolves rooms to their streamable blob and serves byte ranges.
type MediaService struct {
	chunks *ChunkStore
	log    *slog.Logger
}

func NewMediaService(chunks *ChunkStore, log *slog.Logger) *MediaService {
	if log == nil {
		log = slog.Default()
	}
	return &MediaService{chunks: chunks, log: log}
}

// Metadata describes the room's media without opening it.
func (s *MediaService) Metadata(ctx context.Context, roomCode string) (*domain.MediaMetadata, error) {
	blob, err := s.chunks.StreamableBlob(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	return &domain.MediaMetadata{
		Filename: displayName(blob),
		Size:     blob.Length,
		MimeType: mimeOf(blob),
	}, nil
}

// Stream opens the room's blob for rangeHeader. An empty header selects the
// whole file. The returned body stops reading from storage once ctx is done.
func (s *MediaService) Stream(ctx context.Context, roomCode, rangeHeader string) (*MediaStream, error) {
	const op = "service.media.Stream"
	log := s.log.With(slog.String("op", op), slog.String("room_code", roomCode))

	blob, err := s.chunks.StreamableBlob(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	size := blob.Length
	stream := &MediaStream{
		TotalSize:   size,
		ContentType: mimeOf(blob),
		Filename:    displayName(blob),
	}

	if strings.TrimSpace(rangeHeader) == "" {
		stream.Start, stream.End = 0, size-1
		stream.ContentLength = size
	} else {
		start, end, err := ParseRange(rangeHeader, size)
		if err != nil {
			return nil, &RangeError{Size: size, Err: fmt.Errorf("%s: %w", op, err)}
		}
		stream.Partial = true
		stream.Start, stream.End = start, end
		stream.ContentLength = end - start + 1
		stream.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, end, size)
	}

	ds, err := s.chunks.OpenBlob(ctx, roomCode, blob.ID)
	if err != nil {
		return nil, err
	}

	if stream.Start > 0 {
		skipped, err := ds.Skip(stream.Start)
		if err == nil && skipped != stream.Start {
			err = fmt.Errorf("skipped %d of %d bytes", skipped, stream.Start)
		}
		if err != nil {
			_ = ds.Close()
			log.Error("failed to position stream", sl.Err(err))
			return nil, translate(op, err)
		}
	}

	stream.Body = newRangeBody(ctx, ds, stream.ContentLength)
	return stream, nil
}

// Manifest returns a fixed HLS playlist for the room. No segmenting happens.
func (s *MediaService) Manifest(ctx context.Context, roomCode string) (string, error) {
	if _, err := s.chunks.StreamableBlob(ctx, roomCode); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-TARGETDURATION:10\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n\n")
	for i := 0; i < 2; i++ {
		fmt.Fprintf(&b, "#EXTINF:10.0,\n/api/rooms/%s/stream/segment/%d\n", roomCode, i)
	}
	b.WriteString("#EXT-X-ENDLIST")
	return b.String(), nil
}

// ParseRange parses a single "bytes=<start>-[<end>]" range against a blob
// of size bytes. Errors wrap domain.ErrInvalidRange.
func ParseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("%w: unsupported range unit in %q", domain.ErrInvalidRange, header)
	}
	if strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("%w: multiple ranges are not supported", domain.ErrInvalidRange)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed range %q", domain.ErrInvalidRange, header)
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed range start %q", domain.ErrInvalidRange, startStr)
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: malformed range end %q", domain.ErrInvalidRange, endStr)
		}
	}

	if start < 0 || start > end || end >= size {
		return 0, 0, fmt.Errorf("%w: bytes %d-%d outside 0-%d", domain.ErrInvalidRange, start, end, size-1)
	}
	return start, end, nil
}

// rangeBody limits a download stream to n bytes and releases the storage
// handle on Close or when ctx ends, whichever comes first. Download streams
// are not safe for concurrent use, so a release waits for an in-flight Read.
type rangeBody struct {
	ctx  context.Context
	r    io.Reader
	ds   storage.DownloadStream
	stop func() bool

	mu       sync.Mutex
	released bool
	cerr     error
}

func newRangeBody(ctx context.Context, ds storage.DownloadStream, n int64) *rangeBody {
	b := &rangeBody{ctx: ctx, r: io.LimitReader(ds, n), ds: ds}
	b.stop = context.AfterFunc(ctx, func() { _ = b.release() })
	return b
}

func (b *rangeBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	if b.released {
		return 0, errBodyReleased
	}
	return b.r.Read(p)
}

func (b *rangeBody) Close() error {
	b.stop()
	return b.release()
}

func (b *rangeBody) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.released {
		b.released = true
		b.cerr = b.ds.Close()
	}
	return b.cerr
}

func displayName(blob *storage.FileInfo) string {
	if blob.Metadata.OriginalName != "" {
		return blob.Metadata.OriginalName
	}
	return blob.Name
}

func mimeOf(blob *storage.FileInfo) string {
	if blob.Metadata.MimeType != "" {
		return blob.Metadata.MimeType
	}
	return defaultMimeType
}
