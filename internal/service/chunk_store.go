package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCopyBuffer    = 256 << 10
	defaultBlobCacheSize = 256
)

// ChunkStore stages upload chunks in a bucket keyed by (session, index) and
// reassembles them into one streamable blob per room.
type ChunkStore struct {
	bucket   storage.Bucket
	sessions repository.UploadSessionRepository
	log      *slog.Logger
	copyBuf  int
	now      func() time.Time

	writes  chunkLocks
	lookups singleflight.Group
	blobs   *lru.Cache

	// epoch advances on every blob invalidation. A lookup only caches its
	// result if no invalidation happened while it ran.
	epochMu sync.Mutex
	epoch   uint64
}

type ChunkStoreOptions struct {
	CopyBuffer    int
	BlobCacheSize int
	// Now is the clock for session expiry and blob timestamps.
	Now func() time.Time
}

func NewChunkStore(bucket storage.Bucket, sessions repository.UploadSessionRepository, log *slog.Logger, opts ChunkStoreOptions) (*ChunkStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.CopyBuffer <= 0 {
		opts.CopyBuffer = defaultCopyBuffer
	}
	if opts.BlobCacheSize <= 0 {
		opts.BlobCacheSize = defaultBlobCacheSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := lru.New(opts.BlobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}

	return &ChunkStore{
		bucket:   bucket,
		sessions: sessions,
		log:      log,
		copyBuf:  opts.CopyBuffer,
		now:      opts.Now,
		blobs:    cache,
	}, nil
}

// AcceptChunk persists chunk index of a session and marks it received.
// A chunk that is already recorded is accepted again without rewriting.
// Concurrent uploads of the same index are serialised; a later one finds
// the chunk recorded or writes its own body if the earlier attempt failed.
func (s *ChunkStore) AcceptChunk(ctx context.Context, sessionID string, index int, body io.Reader) (*domain.UploadSession, error) {
	const op = "service.chunks.AcceptChunk"
	log := s.log.With(
		slog.String("op", op),
		slog.String("session_id", sessionID),
		slog.Int("chunk", index),
	)

	session, err := s.activeSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.ValidIndex(index) {
		return nil, invalidInput(op, fmt.Sprintf("chunk index %d outside [0, %d)", index, session.TotalChunks))
	}
	if session.HasChunk(index) {
		log.Debug("chunk already recorded")
		return session, nil
	}

	release, err := s.writes.acquire(ctx, storage.ChunkName(sessionID, index))
	if err != nil {
		return nil, translate(op, err)
	}
	defer release()

	return s.writeChunk(ctx, log, session, index, body)
}

func (s *ChunkStore) writeChunk(ctx context.Context, log *slog.Logger, session *domain.UploadSession, index int, body io.Reader) (*domain.UploadSession, error) {
	const op = "service.chunks.writeChunk"
	name := storage.ChunkName(session.ID, index)

	current, err := s.sessions.Get(ctx, session.ID)
	if err != nil {
		return nil, translate(op, err)
	}
	if current.HasChunk(index) {
		log.Debug("chunk recorded by concurrent upload")
		return current, nil
	}

	// Leftovers of an attempt that was written but never recorded.
	stale, err := s.bucket.Find(ctx, storage.Filter{Name: name})
	if err != nil {
		return nil, translate(op, err)
	}
	for _, f := range stale {
		if err := s.bucket.Delete(ctx, f.ID); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			return nil, translate(op, err)
		}
	}

	chunkIndex := index
	stream, err := s.bucket.OpenUploadStream(ctx, name, storage.Metadata{
		SessionID:  session.ID,
		ChunkIndex: &chunkIndex,
	})
	if err != nil {
		return nil, translate(op, err)
	}

	want := session.ExpectedChunkLength(index)
	src := &bodyReader{r: io.LimitReader(body, want+1)}
	n, err := io.Copy(stream, src)
	if err != nil {
		_ = stream.Abort()
		if src.err != nil {
			return nil, invalidInput(op, "reading chunk body: "+src.err.Error())
		}
		return nil, translate(op, err)
	}
	if n != want {
		_ = stream.Abort()
		return nil, invalidInput(op, fmt.Sprintf("chunk %d has %d bytes, expected %d", index, n, want))
	}
	if err := stream.Close(); err != nil {
		return nil, translate(op, err)
	}

	updated, _, err := s.sessions.MarkChunk(ctx, session.ID, index)
	if err != nil {
		if derr := s.bucket.Delete(context.WithoutCancel(ctx), stream.FileID()); derr != nil {
			log.Warn("failed to drop unrecorded chunk", sl.Err(derr))
		}
		return nil, translate(op, err)
	}

	log.Debug("chunk stored", slog.Int64("bytes", n), slog.String("file_id", stream.FileID()))
	return updated, nil
}

// AttachFunc links a sealed blob to its room.
type AttachFunc func(ctx context.Context, blob *storage.FileInfo, chunkIDs []string) error

// Reassemble concatenates a complete session's chunks in ascending index
// order into one streamable blob tagged with the session's room. Once the
// blob is sealed and attach succeeds the chunks are deleted. If attach fails
// the new blob is dropped and the chunks stay, so completion can be retried.
func (s *ChunkStore) Reassemble(ctx context.Context, session *domain.UploadSession, attach AttachFunc) (*storage.FileInfo, error) {
	const op = "service.chunks.Reassemble"
	log := s.log.With(
		slog.String("op", op),
		slog.String("session_id", session.ID),
		slog.String("room_code", session.RoomCode),
	)

	if !session.IsComplete() {
		return nil, fmt.Errorf("%s: %w: missing chunks %v", op, domain.ErrIncompleteUpload, session.MissingChunks())
	}

	stored, err := s.bucket.Find(ctx, storage.Filter{SessionID: session.ID})
	if err != nil {
		return nil, translate(op, err)
	}
	chunks := make(map[int]storage.FileInfo, len(stored))
	for _, f := range stored {
		if f.Metadata.ChunkIndex == nil {
			continue
		}
		// Find returns oldest first; the newest write of an index wins.
		chunks[*f.Metadata.ChunkIndex] = f
	}

	chunkIDs := make([]string, 0, session.TotalChunks)
	for i := 0; i < session.TotalChunks; i++ {
		f, ok := chunks[i]
		if !ok {
			return nil, fmt.Errorf("%s: %w: chunk %d recorded but not stored", op, domain.ErrStorageFailure, i)
		}
		chunkIDs = append(chunkIDs, f.ID)
	}

	out, err := s.bucket.OpenUploadStream(ctx, storage.BlobName(session.RoomCode, session.Filename), storage.Metadata{
		RoomCode:     session.RoomCode,
		OriginalName: session.Filename,
		MimeType:     session.MimeType,
		TotalSize:    session.TotalSize,
		IsStreamable: true,
	})
	if err != nil {
		return nil, translate(op, err)
	}

	buf := make([]byte, s.copyBuf)
	var written int64
	for i, id := range chunkIDs {
		n, err := s.copyChunk(ctx, out, id, buf)
		written += n
		if err != nil {
			_ = out.Abort()
			log.Error("reassembly aborted", slog.Int("chunk", i), sl.Err(err))
			return nil, translate(op, err)
		}
	}

	if written != session.TotalSize {
		_ = out.Abort()
		return nil, fmt.Errorf("%s: %w: wrote %d of %d bytes", op, domain.ErrStorageFailure, written, session.TotalSize)
	}
	if err := out.Close(); err != nil {
		return nil, translate(op, err)
	}
	s.invalidate(session.RoomCode)

	info := &storage.FileInfo{
		ID:         out.FileID(),
		Name:       storage.BlobName(session.RoomCode, session.Filename),
		Length:     written,
		UploadedAt: s.now().UTC(),
		Metadata: storage.Metadata{
			RoomCode:     session.RoomCode,
			OriginalName: session.Filename,
			MimeType:     session.MimeType,
			TotalSize:    session.TotalSize,
			IsStreamable: true,
		},
	}

	if attach != nil {
		if err := attach(ctx, info, chunkIDs); err != nil {
			if derr := s.DeleteBlob(context.WithoutCancel(ctx), session.RoomCode, info.ID); derr != nil {
				log.Warn("failed to drop unattached blob", sl.Err(derr))
			}
			return nil, err
		}
	}

	for i, id := range chunkIDs {
		if err := s.bucket.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			log.Warn("failed to delete reassembled chunk", slog.Int("chunk", i), sl.Err(err))
		}
	}

	log.Info("blob reassembled", slog.String("blob_id", info.ID), slog.Int64("bytes", written))
	return info, nil
}

func (s *ChunkStore) copyChunk(ctx context.Context, out io.Writer, id string, buf []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	in, err := s.bucket.OpenDownloadStream(ctx, id)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	return io.CopyBuffer(out, in, buf)
}

// StoreBlob streams body straight into a streamable blob for roomCode.
// body must carry exactly size bytes.
func (s *ChunkStore) StoreBlob(ctx context.Context, roomCode, filename, mimeType string, size int64, body io.Reader) (*storage.FileInfo, error) {
	const op = "service.chunks.StoreBlob"

	meta := storage.Metadata{
		RoomCode:     roomCode,
		OriginalName: filename,
		MimeType:     mimeType,
		TotalSize:    size,
		IsStreamable: true,
	}
	out, err := s.bucket.OpenUploadStream(ctx, storage.BlobName(roomCode, filename), meta)
	if err != nil {
		return nil, translate(op, err)
	}

	src := &bodyReader{r: io.LimitReader(body, size+1)}
	n, err := io.CopyBuffer(out, src, make([]byte, s.copyBuf))
	if err != nil {
		_ = out.Abort()
		if src.err != nil {
			return nil, invalidInput(op, "reading upload body: "+src.err.Error())
		}
		return nil, translate(op, err)
	}
	if n != size {
		_ = out.Abort()
		return nil, invalidInput(op, fmt.Sprintf("body has %d bytes, declared %d", n, size))
	}
	if err := out.Close(); err != nil {
		return nil, translate(op, err)
	}

	s.invalidate(roomCode)
	return &storage.FileInfo{
		ID:         out.FileID(),
		Name:       storage.BlobName(roomCode, filename),
		Length:     n,
		UploadedAt: s.now().UTC(),
		Metadata:   meta,
	}, nil
}

// StreamableBlob resolves the newest streamable blob of a room.
func (s *ChunkStore) StreamableBlob(ctx context.Context, roomCode string) (*storage.FileInfo, error) {
	const op = "service.chunks.StreamableBlob"

	if v, ok := s.blobs.Get(roomCode); ok {
		info := v.(storage.FileInfo)
		return &info, nil
	}

	v, err, _ := s.lookups.Do(roomCode, func() (any, error) {
		epoch := s.currentEpoch()
		files, err := s.bucket.Find(ctx, storage.Filter{RoomCode: roomCode, StreamableOnly: true})
		if err != nil {
			return nil, translate(op, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%s: %w: no media for room %s", op, domain.ErrNotFound, roomCode)
		}
		info := files[len(files)-1]
		s.cacheBlob(epoch, roomCode, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}

	info := v.(storage.FileInfo)
	return &info, nil
}

func (s *ChunkStore) currentEpoch() uint64 {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	return s.epoch
}

func (s *ChunkStore) cacheBlob(epoch uint64, roomCode string, info storage.FileInfo) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	if s.epoch == epoch {
		s.blobs.Add(roomCode, info)
	}
}

func (s *ChunkStore) invalidate(roomCode string) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	s.epoch++
	s.blobs.Remove(roomCode)
}

// OpenBlob opens an independent read handle on a stored blob.
func (s *ChunkStore) OpenBlob(ctx context.Context, roomCode, id string) (storage.DownloadStream, error) {
	const op = "service.chunks.OpenBlob"

	stream, err := s.bucket.OpenDownloadStream(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			s.invalidate(roomCode)
		}
		return nil, translate(op, err)
	}
	return stream, nil
}

// DeleteBlob removes one blob of a room.
func (s *ChunkStore) DeleteBlob(ctx context.Context, roomCode, id string) error {
	const op = "service.chunks.DeleteBlob"

	s.invalidate(roomCode)
	if err := s.bucket.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
		return translate(op, err)
	}
	return nil
}

// DeleteBlobByRoom removes every blob tagged with roomCode.
func (s *ChunkStore) DeleteBlobByRoom(ctx context.Context, roomCode string) error {
	return s.DeleteRoomBlobsExcept(ctx, roomCode, "")
}

// DeleteRoomBlobsExcept removes every blob tagged with roomCode other than keepID.
func (s *ChunkStore) DeleteRoomBlobsExcept(ctx context.Context, roomCode, keepID string) error {
	const op = "service.chunks.DeleteRoomBlobs"
	log := s.log.With(slog.String("op", op), slog.String("room_code", roomCode))

	s.invalidate(roomCode)
	defer s.invalidate(roomCode)

	files, err := s.bucket.Find(ctx, storage.Filter{RoomCode: roomCode})
	if err != nil {
		return translate(op, err)
	}

	var errs []error
	for _, f := range files {
		if f.ID == keepID {
			continue
		}
		if err := s.bucket.Delete(ctx, f.ID); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			log.Warn("failed to delete blob", slog.String("blob_id", f.ID), sl.Err(err))
			errs = append(errs, err)
			continue
		}
		log.Info("blob deleted", slog.String("blob_id", f.ID))
	}

	if len(errs) > 0 {
		return translate(op, errors.Join(errs...))
	}
	return nil
}

// PurgeSession deletes every stored chunk of a session.
func (s *ChunkStore) PurgeSession(ctx context.Context, sessionID string) error {
	const op = "service.chunks.PurgeSession"
	log := s.log.With(slog.String("op", op), slog.String("session_id", sessionID))

	files, err := s.bucket.Find(ctx, storage.Filter{SessionID: sessionID})
	if err != nil {
		return translate(op, err)
	}

	var errs []error
	for _, f := range files {
		if err := s.bucket.Delete(ctx, f.ID); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			log.Warn("failed to delete chunk", slog.String("file_id", f.ID), sl.Err(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return translate(op, errors.Join(errs...))
	}
	return nil
}

func (s *ChunkStore) activeSession(ctx context.Context, op, sessionID string) (*domain.UploadSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, translate(op, err)
	}
	if session.IsExpired(s.now()) {
		return nil, fmt.Errorf("%s: %w: upload session expired", op, domain.ErrNotFound)
	}
	return session, nil
}

// chunkLocks hands out one context-aware lock per chunk name. Entries are
// dropped once nobody holds or waits on them.
type chunkLocks struct {
	mu    sync.Mutex
	locks map[string]*chunkLock
}

type chunkLock struct {
	sem  *semaphore.Weighted
	refs int
}

func (l *chunkLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*chunkLock)
	}
	k, ok := l.locks[key]
	if !ok {
		k = &chunkLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = k
	}
	k.refs++
	l.mu.Unlock()

	if err := k.sem.Acquire(ctx, 1); err != nil {
		l.put(key, k)
		return nil, err
	}
	return func() {
		k.sem.Release(1)
		l.put(key, k)
	}, nil
}

func (l *chunkLocks) put(key string, k *chunkLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k.refs--
	if k.refs == 0 {
		delete(l.locks, key)
	}
}

// bodyReader remembers read failures so a broken client body is told apart
// from a storage write failure.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}
