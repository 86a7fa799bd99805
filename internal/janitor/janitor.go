// Package janitor runs the periodic upload expiry and room cleanup sweeps.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/watchparty/lib/logger/sl"
	"github.com/robfig/cron/v3"
)

type SessionSweeper interface {
	ExpireSessions(ctx context.Context) (int, error)
}

type RoomSweeper interface {
	CleanupOldRooms(ctx context.Context) (int, error)
}

type Config struct {
	UploadExpirySpec string
	RoomCleanupSpec  string
	Timeout          time.Duration
}

type Janitor struct {
	cron     *cron.Cron
	sessions SessionSweeper
	rooms    RoomSweeper
	timeout  time.Duration
	log      *slog.Logger
}

func New(sessions SessionSweeper, rooms RoomSweeper, cfg Config, log *slog.Logger) (*Janitor, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	logger := cronLogger{log: log.With(slog.String("component", "janitor"))}
	j := &Janitor{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		sessions: sessions,
		rooms:    rooms,
		timeout:  cfg.Timeout,
		log:      log,
	}

	if _, err := j.cron.AddFunc(cfg.UploadExpirySpec, func() { j.sweep("expire_sessions", sessions.ExpireSessions) }); err != nil {
		return nil, fmt.Errorf("upload expiry schedule %q: %w", cfg.UploadExpirySpec, err)
	}
	if _, err := j.cron.AddFunc(cfg.RoomCleanupSpec, func() { j.sweep("cleanup_rooms", rooms.CleanupOldRooms) }); err != nil {
		return nil, fmt.Errorf("room cleanup schedule %q: %w", cfg.RoomCleanupSpec, err)
	}
	return j, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for
// running sweeps to return.
func (j *Janitor) Run(ctx context.Context) error {
	j.cron.Start()
	j.log.Info("janitor started", slog.Int("jobs", len(j.cron.Entries())))

	<-ctx.Done()

	<-j.cron.Stop().Done()
	j.log.Info("janitor stopped")
	return nil
}

// RunOnce runs both sweeps immediately.
func (j *Janitor) RunOnce() {
	j.sweep("expire_sessions", j.sessions.ExpireSessions)
	j.sweep("cleanup_rooms", j.rooms.CleanupOldRooms)
}

func (j *Janitor) sweep(name string, fn func(context.Context) (int, error)) {
	const op = "janitor.sweep"
	log := j.log.With(slog.String("op", op), slog.String("job", name))

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	started := time.Now()
	n, err := fn(ctx)
	if err != nil {
		log.Error("sweep failed", sl.Err(err))
		return
	}
	log.Info("sweep finished", slog.Int("removed", n), slog.Duration("took", time.Since(started)))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{sl.Err(err)}, keysAndValues...)...)
}
