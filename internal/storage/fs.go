package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	blobExt   = ".blob"
	recordExt = ".json"
	tmpDir    = ".tmp"
)

// FSBucket stores each file as <id>.blob next to a <id>.json record. Files
// are written under .tmp and renamed into place on Close, so a file is either
// fully visible or absent.
type FSBucket struct {
	root string
	mu   sync.RWMutex
}

func NewFSBucket(root string) (*FSBucket, error) {
	if err := os.MkdirAll(filepath.Join(root, tmpDir), 0o755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &FSBucket{root: root}, nil
}

func (b *FSBucket) OpenUploadStream(ctx context.Context, name string, meta Metadata) (UploadStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	f, err := os.Create(b.tmpPath(id))
	if err != nil {
		return nil, fmt.Errorf("open upload stream: %w", err)
	}

	return &fsUploadStream{
		bucket: b,
		file:   f,
		info: FileInfo{
			ID:       id,
			Name:     name,
			Metadata: meta,
		},
	}, nil
}

func (b *FSBucket) OpenDownloadStream(ctx context.Context, id string) (DownloadStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrFileNotFound
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := b.readRecord(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(b.blobPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open download stream: %w", err)
	}

	return &fsDownloadStream{file: f, length: info.Length}, nil
}

func (b *FSBucket) Find(ctx context.Context, filter Filter) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("list bucket: %w", err)
	}

	result := make([]FileInfo, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		info, err := b.readRecord(strings.TrimSuffix(entry.Name(), recordExt))
		if err != nil {
			if errors.Is(err, ErrFileNotFound) {
				continue
			}
			return nil, err
		}
		if filter.matches(info.Name, info.Metadata) {
			result = append(result, *info)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadedAt.Before(result[j].UploadedAt)
	})
	return result, nil
}

func (b *FSBucket) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrFileNotFound
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.recordPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("delete record: %w", err)
	}
	// Open readers keep their handle; the data is reclaimed once they close.
	if err := os.Remove(b.blobPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (b *FSBucket) readRecord(id string) (*FileInfo, error) {
	raw, err := os.ReadFile(b.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	var info FileInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &info, nil
}

func (b *FSBucket) seal(info FileInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	recordTmp := b.tmpPath(info.ID) + recordExt
	if err := os.WriteFile(recordTmp, raw, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Rename(b.tmpPath(info.ID), b.blobPath(info.ID)); err != nil {
		_ = os.Remove(recordTmp)
		return fmt.Errorf("seal blob: %w", err)
	}
	if err := os.Rename(recordTmp, b.recordPath(info.ID)); err != nil {
		_ = os.Remove(b.blobPath(info.ID))
		_ = os.Remove(recordTmp)
		return fmt.Errorf("seal record: %w", err)
	}
	return nil
}

func (b *FSBucket) blobPath(id string) string   { return filepath.Join(b.root, id+blobExt) }
func (b *FSBucket) recordPath(id string) string { return filepath.Join(b.root, id+recordExt) }
func (b *FSBucket) tmpPath(id string) string    { return filepath.Join(b.root, tmpDir, id+".part") }

type fsUploadStream struct {
	bucket *FSBucket
	file   *os.File
	info   FileInfo
	done   bool
}

func (s *fsUploadStream) Write(p []byte) (int, error) {
	if s.done {
		return 0, ErrStreamClosed
	}
	n, err := s.file.Write(p)
	s.info.Length += int64(n)
	return n, err
}

func (s *fsUploadStream) FileID() string { return s.info.ID }

func (s *fsUploadStream) Close() error {
	if s.done {
		return ErrStreamClosed
	}
	s.done = true

	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		_ = os.Remove(s.file.Name())
		return fmt.Errorf("sync upload: %w", err)
	}
	if err := s.file.Close(); err != nil {
		_ = os.Remove(s.file.Name())
		return fmt.Errorf("close upload: %w", err)
	}

	s.info.UploadedAt = time.Now().UTC()
	return s.bucket.seal(s.info)
}

func (s *fsUploadStream) Abort() error {
	if s.done {
		return ErrStreamClosed
	}
	s.done = true
	_ = s.file.Close()
	if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("abort upload: %w", err)
	}
	return nil
}

type fsDownloadStream struct {
	file   *os.File
	length int64
}

func (s *fsDownloadStream) Read(p []byte) (int, error) { return s.file.Read(p) }

func (s *fsDownloadStream) Close() error { return s.file.Close() }

func (s *fsDownloadStream) Length() int64 { return s.length }

func (s *fsDownloadStream) Skip(n int64) (int64, error) {
	cur, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if cur+n > s.length {
		n = s.length - cur
	}
	if _, err := s.file.Seek(n, io.SeekCurrent); err != nil {
		return 0, err
	}
	return n, nil
}
