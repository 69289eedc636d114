package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Retention は保持期間を過ぎた既読通知を定期的に削除する。
type Retention struct {
	store    Store
	days     int
	schedule string
	logger   *zap.Logger
	now      func() time.Time
	cron     *cron.Cron
}

// NewRetention は新しいRetentionを生成する。daysが0以下の場合は削除しない。
func NewRetention(store Store, days int, schedule string, logger *zap.Logger) *Retention {
	return &Retention{
		store:    store,
		days:     days,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Enabled は削除ジョブが有効かどうかを返す。
func (r *Retention) Enabled() bool {
	return r.days > 0
}

// Start はスケジューラを開始する。無効な場合は何もしない。
func (r *Retention) Start() error {
	if !r.Enabled() {
		r.logger.Info("retention disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.Purge(ctx); err != nil {
			r.logger.Error("retention purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("スケジュール %q が不正です: %w", r.schedule, err)
	}

	r.cron = c
	c.Start()
	r.logger.Info("retention scheduled", zap.String("schedule", r.schedule), zap.Int("days", r.days))
	return nil
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (r *Retention) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}

	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Purge は保持期間より前に作成された既読通知を削除し、件数を返す。
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	before := r.now().AddDate(0, 0, -r.days)
	n, err := r.store.PurgeReadBefore(ctx, before)
	if err != nil {
		return 0, err
	}

	notificationsPurged.Add(float64(n))
	r.logger.Info("retention purged", zap.Int64("count", n), zap.Time("before", before))
	return n, nil
}
