// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/repository"
)

// Service はユーザー管理のサービス層。
// 登録と退会のビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	scheduleRepo repository.ScheduleRepository
	prefsRepo    repository.PreferencesRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	scheduleRepo repository.ScheduleRepository,
	prefsRepo repository.PreferencesRepository,
) *Service {
	return &Service{
		userRepo:     userRepo,
		scheduleRepo: scheduleRepo,
		prefsRepo:    prefsRepo,
	}
}

// Register はチャットIDでユーザーを登録する。
// すでに同じチャットIDのユーザーが存在する場合は既存ユーザーを返す（冪等）。
// 新規登録時はスケジュール（無効・60分間隔）と配信設定（英語・翻訳無効・
// 最大5件）をデフォルト値で作成する。
func (s *Service) Register(ctx context.Context, chatID, username string) (*model.User, error) {
	existing, err := s.userRepo.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	newUser := &model.User{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Username:  username,
		CreatedAt: now,
	}

	if err := s.userRepo.Create(ctx, newUser); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	if err := s.scheduleRepo.Create(ctx, model.DefaultSchedule(newUser.ID)); err != nil {
		return nil, fmt.Errorf("スケジュールの作成に失敗しました: %w", err)
	}

	if err := s.prefsRepo.Upsert(ctx, model.DefaultPreferences(newUser.ID)); err != nil {
		return nil, fmt.Errorf("配信設定の作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", newUser.ID),
		slog.String("chat_id", chatID),
	)

	return newUser, nil
}

// UpdatePreferences はユーザーの配信設定を更新する。
// 設定行が存在しない場合は作成する（Upsert）。
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs *model.Preferences) error {
	existing, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewUserNotFoundError(userID)
	}

	prefs.UserID = userID
	if err := s.prefsRepo.Upsert(ctx, prefs); err != nil {
		return fmt.Errorf("配信設定の更新に失敗しました: %w", err)
	}

	slog.Info("配信設定を更新しました",
		slog.String("user_id", userID),
		slog.String("language", prefs.Language),
		slog.Bool("translation_enabled", prefs.TranslationEnabled),
		slog.Int("max_items", prefs.MaxItems),
	)

	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 購読、配信実績、スケジュール、配信設定はCASCADE削除される。
// フィードと記事は共有キャッシュとして残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	existing, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewUserNotFoundError(userID)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
