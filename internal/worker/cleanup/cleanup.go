// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 有効期限は参照時にも判定されるため、このジョブは領域の回収のみを担う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/bookmarket-auth/internal/metrics"
)

// Sweeper は期限切れセッションを削除し、削除件数を返す。
// *session.Store が満たす。
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepJob は期限切れセッションの削除ジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type SweepJob struct {
	sweeper Sweeper
	logger  *slog.Logger
	metrics metrics.Sink
}

// NewSweepJob は新しいSweepJobを生成する。sinkがnilの場合はメトリクスを記録しない。
func NewSweepJob(sweeper Sweeper, logger *slog.Logger, sink metrics.Sink) *SweepJob {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &SweepJob{
		sweeper: sweeper,
		logger:  logger,
		metrics: sink,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		j.logger.Error("セッションスイープジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションスイープの実行に失敗: %w", err)
	}

	j.metrics.RecordSessionsSwept(deletedCount)
	j.logger.Info("セッションスイープジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降intervalごとに実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行の失敗はログに残して次回に持ち越す。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
