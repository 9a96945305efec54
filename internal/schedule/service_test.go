package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// mockScheduleRepo はScheduleRepositoryのモック実装。
type mockScheduleRepo struct {
	schedule *model.Schedule

	enabledCalls  []bool
	intervalCalls []int
}

func (m *mockScheduleRepo) FindByUserID(ctx context.Context, userID string) (*model.Schedule, error) {
	return m.schedule, nil
}
func (m *mockScheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error { return nil }
func (m *mockScheduleRepo) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	m.enabledCalls = append(m.enabledCalls, enabled)
	return nil
}
func (m *mockScheduleRepo) SetInterval(ctx context.Context, userID string, intervalMinutes int) error {
	m.intervalCalls = append(m.intervalCalls, intervalMinutes)
	return nil
}
func (m *mockScheduleRepo) ListDueUserIDs(ctx context.Context, claimTTL time.Duration, limit int) ([]string, error) {
	return nil, nil
}
func (m *mockScheduleRepo) Claim(ctx context.Context, userID string, claimTTL time.Duration) (bool, error) {
	return false, nil
}
func (m *mockScheduleRepo) ClaimImmediate(ctx context.Context, userID string, claimTTL time.Duration) (bool, error) {
	return false, nil
}
func (m *mockScheduleRepo) Complete(ctx context.Context, userID string) error { return nil }
func (m *mockScheduleRepo) Release(ctx context.Context, userID string) error  { return nil }

// TestSetEnabled は配信の有効化がリポジトリへ伝わることを検証する。
func TestSetEnabled(t *testing.T) {
	repo := &mockScheduleRepo{
		schedule: &model.Schedule{UserID: "user-1", IntervalMinutes: 60},
	}
	s := NewService(repo)

	if err := s.SetEnabled(context.Background(), "user-1", true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if len(repo.enabledCalls) != 1 || !repo.enabledCalls[0] {
		t.Errorf("enabledCalls = %v, want [true]", repo.enabledCalls)
	}
}

// TestSetEnabled_UserNotFound はスケジュールのないユーザーがエラーになることを検証する。
func TestSetEnabled_UserNotFound(t *testing.T) {
	s := NewService(&mockScheduleRepo{})

	err := s.SetEnabled(context.Background(), "missing", true)
	if err == nil {
		t.Fatal("expected error for missing schedule, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

// TestSetInterval_Valid は有効な間隔が更新されることを検証する。
func TestSetInterval_Valid(t *testing.T) {
	repo := &mockScheduleRepo{
		schedule: &model.Schedule{UserID: "user-1", IntervalMinutes: 60},
	}
	s := NewService(repo)

	if err := s.SetInterval(context.Background(), "user-1", 30); err != nil {
		t.Fatalf("SetInterval() error = %v", err)
	}
	if len(repo.intervalCalls) != 1 || repo.intervalCalls[0] != 30 {
		t.Errorf("intervalCalls = %v, want [30]", repo.intervalCalls)
	}
}

// TestSetInterval_BelowMinimum は最小間隔未満の値が拒否されることを検証する。
// 最小値ちょうど（5分）は許可される。
func TestSetInterval_BelowMinimum(t *testing.T) {
	repo := &mockScheduleRepo{
		schedule: &model.Schedule{UserID: "user-1", IntervalMinutes: 60},
	}
	s := NewService(repo)

	err := s.SetInterval(context.Background(), "user-1", 4)
	if err == nil {
		t.Fatal("expected error for interval below minimum, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInterval {
		t.Errorf("err = %v, want INVALID_INTERVAL", err)
	}

	if err := s.SetInterval(context.Background(), "user-1", model.MinIntervalMinutes); err != nil {
		t.Errorf("SetInterval(5) error = %v, want nil", err)
	}
}

// TestStatus はスケジュールと導出状態が返ることを検証する。
func TestStatus(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	repo := &mockScheduleRepo{
		schedule: &model.Schedule{
			UserID:          "user-1",
			Enabled:         true,
			IntervalMinutes: 60,
			LastDelivery:    &past,
		},
	}
	s := NewService(repo)

	schedule, state, err := s.Status(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if schedule.UserID != "user-1" {
		t.Errorf("schedule = %+v", schedule)
	}
	if state != model.ScheduleStateDue {
		t.Errorf("state = %v, want due", state)
	}
}
