// Package ingest はフェッチ済み記事の保存と重複排除を提供する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/repository"
)

// IngestRecorder は取り込み結果の計上先。metrics.Collectorが実装する。
type IngestRecorder interface {
	RecordArticlesIngested(count int)
	RecordArticlesSkipped(count int)
}

// Service は記事の取り込みを担うサービス。
// 同一リンクの記事はデータベースの一意制約により重複排除されるため、
// 複数のフィードが同じ記事を配信していても保存されるのは1件だけになる。
type Service struct {
	articleRepo repository.ArticleRepository
	metrics     IngestRecorder
}

// NewService はServiceを生成する。
func NewService(articleRepo repository.ArticleRepository, metrics IngestRecorder) *Service {
	return &Service{
		articleRepo: articleRepo,
		metrics:     metrics,
	}
}

// Ingest はフェッチ済み記事を保存し、新規保存件数と重複スキップ件数を返す。
// 個々の記事の保存失敗は取り込み全体を止めない。1件も保存処理が
// 完了しなかった場合のみエラーを返す。
func (s *Service) Ingest(ctx context.Context, feedID string, raws []*model.RawArticle) (inserted, skipped int, err error) {
	now := time.Now()
	var lastErr error
	failures := 0

	for _, raw := range raws {
		if raw.Link == "" {
			// リンクのない記事は重複排除キーを持てないためスキップする
			slog.Warn("リンクのない記事をスキップします", "feed_id", feedID, "title", raw.Title)
			skipped++
			continue
		}

		article := &model.Article{
			ID:              uuid.NewString(),
			FeedID:          feedID,
			Title:           raw.Title,
			Link:            raw.Link,
			Description:     raw.Description,
			PublishedAt:     raw.PublishedAt,
			IsDateEstimated: raw.IsDateEstimated,
			FetchedAt:       now,
			CreatedAt:       now,
		}

		created, err := s.articleRepo.InsertIfAbsent(ctx, article)
		if err != nil {
			slog.Error("記事の保存に失敗しました", "feed_id", feedID, "link", raw.Link, "error", err)
			failures++
			lastErr = err
			continue
		}

		if created {
			inserted++
		} else {
			skipped++
		}
	}

	if s.metrics != nil {
		s.metrics.RecordArticlesIngested(inserted)
		s.metrics.RecordArticlesSkipped(skipped)
	}

	if failures > 0 && inserted == 0 && skipped == 0 {
		return 0, 0, fmt.Errorf("記事の取り込みに失敗しました: %w", lastErr)
	}

	return inserted, skipped, nil
}
