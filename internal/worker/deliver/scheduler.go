package deliver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/newsbot/internal/repository"
)

// UserDeliverer は1ユーザー分の配信サイクルの実行インターフェース。
type UserDeliverer interface {
	DeliverToUser(ctx context.Context, userID string) error
}

// listDueBatchSize は1サイクルで取得する配信対象ユーザーの上限。
const listDueBatchSize = 100

// Scheduler は配信サイクルのスケジューリングと並列制御を行う。
// ティッカーで配信期限が到来したユーザーを取得し、semaphoreパターンで
// 最大並列数を制御しながら配信を実行する。
// 実際の排他はオーケストレータのクレーム取得が担うため、複数プロセスで
// 同じスケジューラが動いていても同一ユーザーへの二重配信は起きない。
type Scheduler struct {
	scheduleRepo   repository.ScheduleRepository
	deliverer      UserDeliverer
	logger         *slog.Logger
	claimTTL       time.Duration
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	scheduleRepo repository.ScheduleRepository,
	deliverer UserDeliverer,
	logger *slog.Logger,
	claimTTL time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		scheduleRepo:   scheduleRepo,
		deliverer:      deliverer,
		logger:         logger,
		claimTTL:       claimTTL,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("配信スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("配信スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は配信期限が到来したユーザーを1回取得し、並列で配信を実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	userIDs, err := s.scheduleRepo.ListDueUserIDs(ctx, s.claimTTL, listDueBatchSize)
	if err != nil {
		return err
	}

	if len(userIDs) == 0 {
		return nil
	}

	s.logger.Info("配信サイクルを開始します",
		slog.Int("user_count", len(userIDs)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		wg.Add(1)
		sem <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.deliverer.DeliverToUser(ctx, id); err != nil {
				s.logger.Error("ユーザーへの配信に失敗しました",
					slog.String("user_id", id),
					slog.String("error", err.Error()),
				)
			}
		}(userID)
	}

	wg.Wait()

	return nil
}
