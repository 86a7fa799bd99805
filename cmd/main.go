package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/immxrtalbeast/watchparty/internal/api/http"
	"github.com/immxrtalbeast/watchparty/internal/auth"
	"github.com/immxrtalbeast/watchparty/internal/broker"
	"github.com/immxrtalbeast/watchparty/internal/config"
	"github.com/immxrtalbeast/watchparty/internal/janitor"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/repository/model"
	"github.com/immxrtalbeast/watchparty/internal/service"
	"github.com/immxrtalbeast/watchparty/internal/storage"
	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
	"github.com/immxrtalbeast/watchparty/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("application stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	roomRepo, sessionRepo, err := setupRepositories(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}

	bucket, closeBucket, err := setupBucket(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer closeBucket()

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	chunks, err := service.NewChunkStore(bucket, sessionRepo, log, service.ChunkStoreOptions{
		CopyBuffer:    cfg.Storage.CopyBuffer,
		BlobCacheSize: cfg.Rooms.BlobCacheSize,
	})
	if err != nil {
		return fmt.Errorf("chunk store: %w", err)
	}

	roomService := service.NewRoomService(roomRepo, chunks, service.RoomConfig{
		DefaultMaxParticipants: cfg.Rooms.DefaultMaxParticipants,
		Retention:              cfg.Rooms.Retention,
		ListLimit:              cfg.Rooms.ListLimit,
		CodeAttempts:           cfg.Rooms.CodeAttempts,
	}, log)
	uploadService := service.NewUploadService(sessionRepo, roomRepo, chunks, service.UploadConfig{
		ChunkSize:         cfg.Upload.ChunkSize,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		DirectMaxFileSize: cfg.Upload.DirectMaxFileSize,
		SessionTTL:        cfg.Upload.SessionTTL,
		AllowedMimeTypes:  cfg.Upload.AllowedMimeTypes,
	}, log)
	mediaService := service.NewMediaService(chunks, log)

	hub := broker.New(roomService, log, broker.Options{
		SendBuffer:      cfg.Broker.SendBuffer,
		DisconnectGrace: cfg.Broker.DisconnectGrace,
	})
	defer hub.Shutdown()

	sweeper, err := janitor.New(uploadService, roomService, janitor.Config{
		UploadExpirySpec: cfg.Janitor.UploadExpirySpec,
		RoomCleanupSpec:  cfg.Janitor.RoomCleanupSpec,
		Timeout:          cfg.Janitor.Timeout,
	}, log)
	if err != nil {
		return fmt.Errorf("janitor: %w", err)
	}

	router := httpapi.SetupRouter(cfg.HTTP.AllowedOrigins, verifier, httpapi.Controllers{
		Rooms:   httpapi.NewRoomController(roomService, hub),
		Uploads: httpapi.NewUploadController(uploadService, cfg.Upload.ChunkSize, cfg.Upload.DirectMaxFileSize),
		Media:   httpapi.NewMediaController(mediaService, log),
		Users:   httpapi.NewUserController(cfg.WebRTC.STUNServers),
		WS: httpapi.NewWSController(hub, httpapi.WSConfig{
			WriteWait:      cfg.Broker.WriteWait,
			PongWait:       cfg.Broker.PongWait,
			PingPeriod:     cfg.Broker.PingPeriod,
			MaxMessageSize: cfg.Broker.MaxMessageSize,
			HandleTimeout:  cfg.Broker.HandleTimeout,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}, log),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupRepositories(cfg config.DatabaseConfig, log *slog.Logger) (repository.RoomRepository, repository.UploadSessionRepository, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory repositories, state is lost on restart")
		return repository.NewInMemoryRoomRepository(), repository.NewInMemoryUploadSessionRepository(), nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewGormRoomRepository(db), repository.NewGormUploadSessionRepository(db), nil
}

func setupBucket(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (storage.Bucket, func(), error) {
	switch cfg.Driver {
	case "fs":
		bucket, err := storage.NewFSBucket(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using filesystem media storage", slog.String("path", cfg.Path))
		return bucket, func() {}, nil
	case "gridfs":
		bucket, err := storage.NewGridFSBucket(ctx, storage.GridFSConfig{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			Bucket:         cfg.Bucket,
			ConnectTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("using gridfs media storage", slog.String("database", cfg.MongoDatabase), slog.String("bucket", cfg.Bucket))
		return bucket, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancel()
			if err := bucket.Close(closeCtx); err != nil {
				log.Warn("failed to disconnect gridfs", sl.Err(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
