package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
)

type UploadConfig struct {
	ChunkSize         int64
	MaxFileSize       int64
	DirectMaxFileSize int64
	SessionTTL        time.Duration
	AllowedMimeTypes  []string
}

type UploadProgress struct {
	SessionID      string
	Accepted       bool
	Progress       float64
	IsComplete     bool
	UploadedChunks int
	TotalChunks    int
	State          domain.UploadState
}

// UploadService drives the upload session state machine on top of ChunkStore.
type UploadService struct {
	sessions repository.UploadSessionRepository
	rooms    repository.RoomRepository
	chunks   *ChunkStore
	cfg      UploadConfig
	log      *slog.Logger

	mu         sync.Mutex
	completing map[string]struct{}
}

func NewUploadService(
	sessions repository.UploadSessionRepository,
	rooms repository.RoomRepository,
	chunks *ChunkStore,
	cfg UploadConfig,
	log *slog.Logger,
) *UploadService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = domain.DefaultChunkSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = domain.MaxUploadSize
	}
	if cfg.DirectMaxFileSize <= 0 {
		cfg.DirectMaxFileSize = 2 << 30
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = domain.DefaultSessionTTL
	}
	if len(cfg.AllowedMimeTypes) == 0 {
		cfg.AllowedMimeTypes = domain.AllowedVideoMimeTypes
	}
	return &UploadService{
		sessions:   sessions,
		rooms:      rooms,
		chunks:     chunks,
		cfg:        cfg,
		log:        log,
		completing: make(map[string]struct{}),
	}
}

// CreateSession opens an upload for the room's media. Only the host may upload.
func (s *UploadService) CreateSession(ctx context.Context, caller domain.Identity, roomCode, filename string, totalSize int64, mimeType string) (*domain.UploadSession, error) {
	const op = "service.upload.CreateSession"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_code", roomCode),
		slog.String("user_id", caller.UserID),
	)

	if _, err := s.hostRoom(ctx, op, roomCode, caller); err != nil {
		return nil, err
	}

	filename, err := s.validateFile(op, filename, totalSize, mimeType, s.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}

	session := domain.NewUploadSession(roomCode, filename, mimeType, totalSize, s.cfg.ChunkSize, s.cfg.SessionTTL, s.chunks.now())
	if err := s.sessions.Create(ctx, session); err != nil {
		log.Error("failed to store session", sl.Err(err))
		return nil, translate(op, err)
	}

	log.Info("upload session created",
		slog.String("session_id", session.ID),
		slog.Int64("total_size", totalSize),
		slog.Int("total_chunks", session.TotalChunks),
	)
	return session, nil
}

// UploadChunk stores one chunk and reports progress. Re-sending a chunk is
// accepted without duplicating it.
func (s *UploadService) UploadChunk(ctx context.Context, sessionID string, index int, body io.Reader) (*UploadProgress, error) {
	const op = "service.upload.UploadChunk"

	session, err := s.chunks.AcceptChunk(ctx, sessionID, index, body)
	if err != nil {
		s.log.Info("chunk rejected",
			slog.String("op", op),
			slog.String("session_id", sessionID),
			slog.Int("chunk", index),
			sl.Err(err),
		)
		return nil, err
	}

	progress := s.progressOf(session)
	progress.Accepted = true
	return progress, nil
}

func (s *UploadService) Progress(ctx context.Context, sessionID string) (*UploadProgress, error) {
	const op = "service.upload.Progress"

	session, err := s.chunks.activeSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	return s.progressOf(session), nil
}

// Complete reassembles a fully uploaded session, attaches the result to the
// room and deletes the session. A concurrent Complete for the same session
// fails with ErrConflict.
func (s *UploadService) Complete(ctx context.Context, caller domain.Identity, sessionID string) (*domain.MediaFile, error) {
	const op = "service.upload.Complete"
	log := s.log.With(slog.String("op", op), slog.String("session_id", sessionID))

	if !s.beginCompletion(sessionID) {
		return nil, fmt.Errorf("%s: %w: upload is already being completed", op, domain.ErrConflict)
	}
	defer s.endCompletion(sessionID)

	session, err := s.chunks.activeSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.hostRoom(ctx, op, session.RoomCode, caller); err != nil {
		return nil, err
	}
	if session.State(s.chunks.now()) != domain.UploadReadyToComplete {
		return nil, fmt.Errorf("%s: %w: %d of %d chunks received",
			op, domain.ErrUploadNotComplete, len(session.UploadedChunks), session.TotalChunks)
	}

	var media *domain.MediaFile
	blob, err := s.chunks.Reassemble(ctx, session, func(ctx context.Context, blob *storage.FileInfo, chunkIDs []string) error {
		media = &domain.MediaFile{
			BlobID:       blob.ID,
			Filename:     blob.Name,
			OriginalName: session.Filename,
			Size:         blob.Length,
			MimeType:     session.MimeType,
			UploadedAt:   blob.UploadedAt,
			ChunkIDs:     chunkIDs,
		}
		return s.attach(ctx, op, session.RoomCode, media)
	})
	if err != nil {
		log.Error("reassembly failed", sl.Err(err))
		return nil, err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		log.Warn("failed to delete completed session", sl.Err(err))
	}

	log.Info("upload completed", slog.String("room_code", session.RoomCode), slog.String("blob_id", blob.ID))
	return media, nil
}

// UploadDirect streams a whole file in one request into the room's media.
func (s *UploadService) UploadDirect(ctx context.Context, caller domain.Identity, roomCode, filename, mimeType string, size int64, body io.Reader) (*domain.MediaFile, error) {
	const op = "service.upload.UploadDirect"

	if _, err := s.hostRoom(ctx, op, roomCode, caller); err != nil {
		return nil, err
	}
	filename, err := s.validateFile(op, filename, size, mimeType, s.cfg.DirectMaxFileSize)
	if err != nil {
		return nil, err
	}

	blob, err := s.chunks.StoreBlob(ctx, roomCode, filename, mimeType, size, body)
	if err != nil {
		return nil, err
	}

	media := &domain.MediaFile{
		BlobID:       blob.ID,
		Filename:     blob.Name,
		OriginalName: filename,
		Size:         blob.Length,
		MimeType:     mimeType,
		UploadedAt:   blob.UploadedAt,
	}
	if err := s.attach(ctx, op, roomCode, media); err != nil {
		if derr := s.chunks.DeleteBlob(context.WithoutCancel(ctx), roomCode, blob.ID); derr != nil {
			s.log.Warn("failed to drop unattached blob", slog.String("op", op), sl.Err(derr))
		}
		return nil, err
	}

	s.log.Info("direct upload stored",
		slog.String("op", op),
		slog.String("room_code", roomCode),
		slog.String("blob_id", blob.ID),
	)
	return media, nil
}

// ExpireSessions purges sessions past their expiry together with their
// chunks. Per-session failures are logged and skipped.
func (s *UploadService) ExpireSessions(ctx context.Context) (int, error) {
	const op = "service.upload.ExpireSessions"
	log := s.log.With(slog.String("op", op))

	expired, err := s.sessions.ListExpired(ctx, s.chunks.now())
	if err != nil {
		return 0, translate(op, err)
	}

	purged := 0
	for _, session := range expired {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if !s.beginCompletion(session.ID) {
			continue
		}

		err := s.chunks.PurgeSession(ctx, session.ID)
		if err == nil {
			err = s.sessions.Delete(ctx, session.ID)
		}
		s.endCompletion(session.ID)

		if err != nil {
			log.Warn("failed to expire session", slog.String("session_id", session.ID), sl.Err(err))
			continue
		}
		purged++
	}

	log.Info("expired upload sessions swept", slog.Int("candidates", len(expired)), slog.Int("purged", purged))
	return purged, nil
}

func (s *UploadService) attach(ctx context.Context, op, roomCode string, media *domain.MediaFile) error {
	if _, err := s.rooms.SetMediaFile(ctx, roomCode, media); err != nil {
		s.log.Error("failed to attach media",
			slog.String("op", op),
			slog.String("room_code", roomCode),
			sl.Err(err),
		)
		return translate(op, err)
	}

	// Earlier media of the room is replaced.
	if err := s.chunks.DeleteRoomBlobsExcept(ctx, roomCode, media.BlobID); err != nil {
		s.log.Warn("failed to delete replaced media", slog.String("op", op), slog.String("room_code", roomCode), sl.Err(err))
	}
	return nil
}

func (s *UploadService) hostRoom(ctx context.Context, op, roomCode string, caller domain.Identity) (*domain.Room, error) {
	if !caller.Valid() {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}

	room, err := s.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, translate(op, err)
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrRoomInactive)
	}
	if !room.IsHost(caller.UserID) {
		return nil, fmt.Errorf("%s: %w: only the host can upload media", op, domain.ErrForbidden)
	}
	return room, nil
}

func (s *UploadService) validateFile(op, filename string, size int64, mimeType string, maxSize int64) (string, error) {
	filename = strings.TrimSpace(filepath.Base(filepath.Clean("/" + strings.TrimSpace(filename))))
	if filename == "" || filename == "/" || filename == "." {
		return "", invalidInput(op, "filename is required")
	}
	if size <= 0 {
		return "", invalidInput(op, "file size must be positive")
	}
	if size > maxSize {
		return "", invalidInput(op, fmt.Sprintf("file size %d exceeds limit %d", size, maxSize))
	}
	if !slices.Contains(s.cfg.AllowedMimeTypes, mimeType) {
		return "", invalidInput(op, fmt.Sprintf("mime type %q is not allowed", mimeType))
	}
	return filename, nil
}

func (s *UploadService) progressOf(session *domain.UploadSession) *UploadProgress {
	return &UploadProgress{
		SessionID:      session.ID,
		Progress:       session.Progress(),
		IsComplete:     session.IsComplete(),
		UploadedChunks: len(session.UploadedChunks),
		TotalChunks:    session.TotalChunks,
		State:          session.State(s.chunks.now()),
	}
}

func (s *UploadService) beginCompletion(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.completing[sessionID]; busy {
		return false
	}
	s.completing[sessionID] = struct{}{}
	return true
}

func (s *UploadService) endCompletion(sessionID string) {
	s.mu.Lock()
	delete(s.completing, sessionID)
	s.mu.Unlock()
}
