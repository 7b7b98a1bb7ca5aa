package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredRequestCleaner removes verification requests past their
// retention window
type ExpiredRequestCleaner interface {
	CleanupExpiredRequests(ctx context.Context) (int64, error)
}

// CleanupManager periodically purges expired verification requests
type CleanupManager struct {
	cleaner  ExpiredRequestCleaner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewCleanupManager(cleaner ExpiredRequestCleaner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		cleaner:  cleaner,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the cleanup loop in a goroutine. An initial pass runs
// immediately so restarts don't wait a full interval.
func (m *CleanupManager) Start(ctx context.Context) {
	m.logger.Info("starting verification request cleanup",
		slog.Duration("interval", m.interval))

	go func() {
		defer close(m.doneCh)

		m.runCleanup(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.runCleanup(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it
func (m *CleanupManager) Stop() {
	close(m.stopCh)
	<-m.doneCh
	m.logger.Info("verification request cleanup stopped")
}

func (m *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := m.cleaner.CleanupExpiredRequests(cleanupCtx)
	if err != nil {
		m.logger.Error("verification request cleanup failed", slog.Any("error", err))
		return
	}

	if deleted > 0 {
		m.logger.Info("purged expired verification requests", slog.Int64("deleted", deleted))
	}
}
