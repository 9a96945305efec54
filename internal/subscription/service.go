// Package subscription はフィード購読のドメインロジックを提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsbot/internal/feed"
	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/repository"
)

// URLValidator はフィードURLの事前検証インターフェース。
// security.SSRFGuardServiceの部分集合。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はフィード購読のサービス層。
// フィードの登録・解除・一覧のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	feedRepo  repository.FeedRepository
	subRepo   repository.SubscriptionRepository
	validator URLValidator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	feedRepo repository.FeedRepository,
	subRepo repository.SubscriptionRepository,
	validator URLValidator,
) *Service {
	return &Service{
		userRepo:  userRepo,
		feedRepo:  feedRepo,
		subRepo:   subRepo,
		validator: validator,
	}
}

// AddFeed はユーザーにフィードを購読させる。
//
// フィードURLは正規化してから検索し、未登録の場合のみ作成する。
// 同じフィードは全ユーザーで1行を共有する。新規フィードのnext_poll_atは
// 現在時刻に設定され、次のポーリングサイクルで即座にフェッチされる。
// すでに購読済みの場合は既存のフィードを返す（冪等）。
func (s *Service) AddFeed(ctx context.Context, userID, rawURL string) (*model.Feed, error) {
	existing, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	feedURL := feed.CanonicalizeLink(rawURL)
	if err := s.validator.ValidateURL(feedURL); err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	f, err := s.feedRepo.FindByFeedURL(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("フィードの検索に失敗しました: %w", err)
	}

	if f == nil {
		now := time.Now()
		f = &model.Feed{
			ID:         uuid.NewString(),
			FeedURL:    feedURL,
			Name:       feed.DeriveFeedName("", feedURL),
			NextPollAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.feedRepo.Create(ctx, f); err != nil {
			return nil, fmt.Errorf("フィードの作成に失敗しました: %w", err)
		}
		slog.Info("フィードを登録しました",
			slog.String("feed_id", f.ID),
			slog.String("feed_url", feedURL),
		)
	}

	created, err := s.subRepo.Create(ctx, &model.Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		FeedID:    f.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("購読の登録に失敗しました: %w", err)
	}

	if created {
		slog.Info("フィードを購読しました",
			slog.String("user_id", userID),
			slog.String("feed_id", f.ID),
		)
	}

	return f, nil
}

// RemoveFeed はユーザーのフィード購読を解除する。
// 配信実績は削除しない。再購読しても配信済み記事は再配信されない。
func (s *Service) RemoveFeed(ctx context.Context, userID, feedID string) error {
	exists, err := s.subRepo.Exists(ctx, userID, feedID)
	if err != nil {
		return fmt.Errorf("購読の確認に失敗しました: %w", err)
	}
	if !exists {
		return model.NewFeedNotFoundError(feedID)
	}

	if err := s.subRepo.Delete(ctx, userID, feedID); err != nil {
		return fmt.Errorf("購読の解除に失敗しました: %w", err)
	}

	slog.Info("フィードの購読を解除しました",
		slog.String("user_id", userID),
		slog.String("feed_id", feedID),
	)

	return nil
}

// ListFeeds はユーザーが購読しているフィード一覧を返す。
func (s *Service) ListFeeds(ctx context.Context, userID string) ([]*model.Feed, error) {
	existing, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	feeds, err := s.subRepo.ListFeedsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("購読フィード一覧の取得に失敗しました: %w", err)
	}

	return feeds, nil
}
