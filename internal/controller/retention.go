package controller

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// cleanupLoop는 주기적으로 보관 기간이 지난 Run을 정리합니다.
func (c *Controller) cleanupLoop(ctx context.Context) error {
	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultConfig().CleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-ctx.Done():
			c.logger.Info("Controller shutting down")
			return ctx.Err()
		}
	}
}

// performCleanup은 RunRetention보다 오래 전에 종료된 Run과 최종 영상 작업을 메모리에서 제거합니다.
// 진행 중인 Run과 영속 이력은 건드리지 않습니다.
func (c *Controller) performCleanup() int {
	if c.cfg.RunRetention <= 0 {
		return 0
	}
	cutoff := c.now().Add(-c.cfg.RunRetention)
	evicted := c.store.evictFinishedBefore(cutoff)
	if len(evicted) > 0 {
		c.logger.Info("Expired runs evicted",
			zap.Int("count", len(evicted)),
			zap.Strings("run_ids", evicted),
			zap.Duration("retention", c.cfg.RunRetention),
		)
	}
	if jobs := c.finals.evictFinishedBefore(cutoff); len(jobs) > 0 {
		c.logger.Info("Expired final video jobs evicted", zap.Strings("job_ids", jobs))
	}
	return len(evicted)
}
