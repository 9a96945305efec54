// Package schedule は配信スケジュールのドメインロジックを提供する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/repository"
)

// Service は配信スケジュールのサービス層。
// 配信の有効化・無効化・間隔変更・状態取得を提供する。
type Service struct {
	scheduleRepo repository.ScheduleRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(scheduleRepo repository.ScheduleRepository) *Service {
	return &Service{scheduleRepo: scheduleRepo}
}

// SetEnabled は配信の有効/無効を切り替える。
func (s *Service) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	schedule, err := s.scheduleRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	if schedule == nil {
		return model.NewUserNotFoundError(userID)
	}

	if err := s.scheduleRepo.SetEnabled(ctx, userID, enabled); err != nil {
		return fmt.Errorf("スケジュールの切り替えに失敗しました: %w", err)
	}

	slog.Info("配信スケジュールを切り替えました",
		slog.String("user_id", userID),
		slog.Bool("enabled", enabled),
	)

	return nil
}

// SetInterval は配信間隔を更新する。
// 最小間隔（5分）未満の値は拒否する。
func (s *Service) SetInterval(ctx context.Context, userID string, intervalMinutes int) error {
	if intervalMinutes < model.MinIntervalMinutes {
		return model.NewInvalidIntervalError(intervalMinutes)
	}

	schedule, err := s.scheduleRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	if schedule == nil {
		return model.NewUserNotFoundError(userID)
	}

	if err := s.scheduleRepo.SetInterval(ctx, userID, intervalMinutes); err != nil {
		return fmt.Errorf("配信間隔の更新に失敗しました: %w", err)
	}

	slog.Info("配信間隔を更新しました",
		slog.String("user_id", userID),
		slog.Int("interval_minutes", intervalMinutes),
	)

	return nil
}

// Status は現在のスケジュールと状態（disabled/idle/due/delivering）を返す。
func (s *Service) Status(ctx context.Context, userID string) (*model.Schedule, model.ScheduleState, error) {
	schedule, err := s.scheduleRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	if schedule == nil {
		return nil, "", model.NewUserNotFoundError(userID)
	}

	return schedule, schedule.StateAt(time.Now()), nil
}
