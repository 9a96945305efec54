// Package fetch はフィードのバックグラウンドポーリング処理を提供する。
// スケジューラ、ポーラー、リトライ/バックオフ戦略を含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/repository"
)

// FeedPollerService はフィードポーリングの実行インターフェース。
type FeedPollerService interface {
	// Poll は指定フィードをフェッチし、結果に応じてフィード状態を更新する。
	Poll(ctx context.Context, feed *model.Feed) error
}

// listDueBatchSize は1サイクルで取得するポーリング対象フィードの上限。
const listDueBatchSize = 100

// Scheduler はフィードポーリングのスケジューリングと並列制御を行う。
// ティッカーでポーリング対象フィードを取得し、semaphoreパターンで
// 最大並列数を制御しながらポーリングを実行する。
type Scheduler struct {
	feedRepo       repository.FeedRepository
	poller         FeedPollerService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	feedRepo repository.FeedRepository,
	poller FeedPollerService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		feedRepo:       feedRepo,
		poller:         poller,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ポーリングスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("ポーリングサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ポーリングスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("ポーリングサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はポーリング対象フィードを1回取得し、並列でポーリングを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// ポーリング対象フィードを取得（FOR UPDATE SKIP LOCKED）
	feeds, err := s.feedRepo.ListDueForPoll(ctx, listDueBatchSize)
	if err != nil {
		return err
	}

	if len(feeds) == 0 {
		s.logger.Info("ポーリング対象のフィードはありません")
		return nil
	}

	s.logger.Info("ポーリングサイクルを開始します",
		slog.Int("feed_count", len(feeds)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, feed := range feeds {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(f *model.Feed) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.poller.Poll(ctx, f); err != nil {
				s.logger.Error("フィードポーリングに失敗しました",
					slog.String("feed_id", f.ID),
					slog.String("feed_url", f.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(feed)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("ポーリングサイクルが完了しました",
		slog.Int("feed_count", len(feeds)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
