package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type GridFSConfig struct {
	URI            string
	Database       string
	Bucket         string
	ConnectTimeout time.Duration
}

// GridFSBucket stores chunks and reassembled media in a MongoDB GridFS bucket.
type GridFSBucket struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

type gridFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
	Name       string             `bson:"filename"`
	Metadata   Metadata           `bson:"metadata"`
}

func NewGridFSBucket(ctx context.Context, cfg GridFSConfig) (*GridFSBucket, error) {
	const op = "storage.gridfs.New"

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	bucket, err := gridfs.NewBucket(
		client.Database(cfg.Database),
		options.GridFSBucket().SetName(cfg.Bucket),
	)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: bucket: %w", op, err)
	}

	return &GridFSBucket{client: client, bucket: bucket}, nil
}

func (b *GridFSBucket) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func (b *GridFSBucket) OpenUploadStream(ctx context.Context, name string, meta Metadata) (UploadStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := b.bucket.OpenUploadStream(name, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return nil, fmt.Errorf("open upload stream: %w", err)
	}

	id, _ := stream.FileID.(primitive.ObjectID)
	return &gridUploadStream{ctx: ctx, stream: stream, id: id.Hex()}, nil
}

func (b *GridFSBucket) OpenDownloadStream(ctx context.Context, id string) (DownloadStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrFileNotFound
	}

	stream, err := b.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open download stream: %w", err)
	}

	return &gridDownloadStream{ctx: ctx, stream: stream}, nil
}

func (b *GridFSBucket) Find(ctx context.Context, filter Filter) ([]FileInfo, error) {
	query := bson.M{}
	if filter.Name != "" {
		query["filename"] = filter.Name
	}
	if filter.SessionID != "" {
		query["metadata.sessionId"] = filter.SessionID
	}
	if filter.RoomCode != "" {
		query["metadata.roomCode"] = filter.RoomCode
	}
	if filter.StreamableOnly {
		query["metadata.isStreamable"] = true
	}

	cursor, err := b.bucket.FindContext(ctx, query,
		options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []gridFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}

	result := make([]FileInfo, 0, len(files))
	for _, f := range files {
		result = append(result, FileInfo{
			ID:         f.ID.Hex(),
			Name:       f.Name,
			Length:     f.Length,
			UploadedAt: f.UploadDate.UTC(),
			Metadata:   f.Metadata,
		})
	}
	return result, nil
}

func (b *GridFSBucket) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrFileNotFound
	}

	if err := b.bucket.DeleteContext(ctx, oid); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

type gridUploadStream struct {
	ctx    context.Context
	stream *gridfs.UploadStream
	id     string
}

func (s *gridUploadStream) Write(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	return s.stream.Write(p)
}

func (s *gridUploadStream) FileID() string { return s.id }

func (s *gridUploadStream) Close() error {
	if err := s.ctx.Err(); err != nil {
		_ = s.stream.Abort()
		return err
	}
	return s.stream.Close()
}

func (s *gridUploadStream) Abort() error { return s.stream.Abort() }

type gridDownloadStream struct {
	ctx    context.Context
	stream *gridfs.DownloadStream
}

func (s *gridDownloadStream) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	return s.stream.Read(p)
}

func (s *gridDownloadStream) Close() error { return s.stream.Close() }

func (s *gridDownloadStream) Skip(n int64) (int64, error) { return s.stream.Skip(n) }

func (s *gridDownloadStream) Length() int64 { return s.stream.GetFile().Length }
