package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/immxrtalbeast/watchparty/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweeperFunc func(ctx context.Context) (int, error)

func (f sweeperFunc) ExpireSessions(ctx context.Context) (int, error)  { return f(ctx) }
func (f sweeperFunc) CleanupOldRooms(ctx context.Context) (int, error) { return f(ctx) }

func TestRunOnceCallsBothSweeps(t *testing.T) {
	var sessions, rooms atomic.Int32
	j, err := New(
		sweeperFunc(func(context.Context) (int, error) { sessions.Add(1); return 2, nil }),
		sweeperFunc(func(context.Context) (int, error) { rooms.Add(1); return 0, errors.New("db down") }),
		Config{UploadExpirySpec: "@every 10m", RoomCleanupSpec: "@hourly"},
		slogdiscard.NewDiscardLogger(),
	)
	require.NoError(t, err)

	j.RunOnce()
	assert.Equal(t, int32(1), sessions.Load())
	assert.Equal(t, int32(1), rooms.Load())
}

func TestNewRejectsBadSchedule(t *testing.T) {
	noop := sweeperFunc(func(context.Context) (int, error) { return 0, nil })
	_, err := New(noop, noop, Config{UploadExpirySpec: "every now and then", RoomCleanupSpec: "@hourly"}, slogdiscard.NewDiscardLogger())
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	var calls atomic.Int32
	sweep := sweeperFunc(func(context.Context) (int, error) { calls.Add(1); return 0, nil })
	j, err := New(sweep, sweep, Config{UploadExpirySpec: "@every 1s", RoomCleanupSpec: "@every 1s"}, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
