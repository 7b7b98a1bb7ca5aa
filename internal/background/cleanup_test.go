package background

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubCleaner struct {
	calls   atomic.Int64
	deleted int64
	err     error
}

func (c *stubCleaner) CleanupExpiredRequests(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return c.deleted, c.err
}

func TestCleanupManager_RunsImmediatelyAndOnTicker(t *testing.T) {
	cleaner := &stubCleaner{deleted: 2}
	manager := NewCleanupManager(cleaner, slog.Default(), 20*time.Millisecond)

	manager.Start(context.Background())
	defer manager.Stop()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestCleanupManager_StopHaltsLoop(t *testing.T) {
	cleaner := &stubCleaner{}
	manager := NewCleanupManager(cleaner, slog.Default(), 10*time.Millisecond)

	manager.Start(context.Background())

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	manager.Stop()
	after := cleaner.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, cleaner.calls.Load())
}
