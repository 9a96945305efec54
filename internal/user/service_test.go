package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// mockUserRepo はUserRepositoryのモック実装。
type mockUserRepo struct {
	findByChatIDFunc func(ctx context.Context, chatID string) (*model.User, error)
	findByIDFunc     func(ctx context.Context, id string) (*model.User, error)

	created []*model.User
	deleted []string
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByChatID(ctx context.Context, chatID string) (*model.User, error) {
	if m.findByChatIDFunc != nil {
		return m.findByChatIDFunc(ctx, chatID)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	m.created = append(m.created, user)
	return nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// mockScheduleRepo はScheduleRepositoryのうちCreateのみを記録するモック。
type mockScheduleRepo struct {
	created []*model.Schedule
}

func (m *mockScheduleRepo) FindByUserID(ctx context.Context, userID string) (*model.Schedule, error) {
	return nil, nil
}
func (m *mockScheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error {
	m.created = append(m.created, schedule)
	return nil
}
func (m *mockScheduleRepo) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	return nil
}
func (m *mockScheduleRepo) SetInterval(ctx context.Context, userID string, intervalMinutes int) error {
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

// mockPrefsRepo はPreferencesRepositoryのモック実装。
type mockPrefsRepo struct {
	upserted []*model.Preferences
}

func (m *mockPrefsRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	return nil, nil
}
func (m *mockPrefsRepo) Upsert(ctx context.Context, prefs *model.Preferences) error {
	m.upserted = append(m.upserted, prefs)
	return nil
}

// TestRegister_NewUser は新規ユーザー登録でユーザー・スケジュール・設定が
// デフォルト値で作成されることを検証する。
func TestRegister_NewUser(t *testing.T) {
	userRepo := &mockUserRepo{}
	scheduleRepo := &mockScheduleRepo{}
	prefsRepo := &mockPrefsRepo{}
	s := NewService(userRepo, scheduleRepo, prefsRepo)

	u, err := s.Register(context.Background(), "chat-42", "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if u.ChatID != "chat-42" || u.Username != "alice" {
		t.Errorf("user = %+v", u)
	}
	if u.ID == "" {
		t.Error("user ID should be generated")
	}
	if len(userRepo.created) != 1 {
		t.Fatalf("created %d users, want 1", len(userRepo.created))
	}

	if len(scheduleRepo.created) != 1 {
		t.Fatalf("created %d schedules, want 1", len(scheduleRepo.created))
	}
	schedule := scheduleRepo.created[0]
	if schedule.Enabled {
		t.Error("default schedule should be disabled")
	}
	if schedule.IntervalMinutes != model.DefaultIntervalMinutes {
		t.Errorf("IntervalMinutes = %d, want %d", schedule.IntervalMinutes, model.DefaultIntervalMinutes)
	}

	if len(prefsRepo.upserted) != 1 {
		t.Fatalf("upserted %d preferences, want 1", len(prefsRepo.upserted))
	}
	prefs := prefsRepo.upserted[0]
	if prefs.Language != model.DefaultLanguage || prefs.MaxItems != model.DefaultMaxItems {
		t.Errorf("prefs = %+v", prefs)
	}
	if prefs.TranslationEnabled {
		t.Error("translation should be disabled by default")
	}
}

// TestRegister_ExistingUser は登録済みチャットIDで既存ユーザーが返ることを検証する（冪等）。
func TestRegister_ExistingUser(t *testing.T) {
	existing := &model.User{ID: "user-1", ChatID: "chat-42"}
	userRepo := &mockUserRepo{
		findByChatIDFunc: func(ctx context.Context, chatID string) (*model.User, error) {
			return existing, nil
		},
	}
	scheduleRepo := &mockScheduleRepo{}
	prefsRepo := &mockPrefsRepo{}
	s := NewService(userRepo, scheduleRepo, prefsRepo)

	u, err := s.Register(context.Background(), "chat-42", "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if u.ID != "user-1" {
		t.Errorf("user ID = %q, want existing user", u.ID)
	}
	if len(userRepo.created) != 0 {
		t.Error("existing user should not be re-created")
	}
	if len(scheduleRepo.created) != 0 || len(prefsRepo.upserted) != 0 {
		t.Error("existing user should keep its schedule and preferences")
	}
}

// TestWithdraw_DeletesUser は退会処理でユーザーが削除されることを検証する。
func TestWithdraw_DeletesUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	s := NewService(userRepo, &mockScheduleRepo{}, &mockPrefsRepo{})

	if err := s.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if len(userRepo.deleted) != 1 || userRepo.deleted[0] != "user-1" {
		t.Errorf("deleted = %v, want [user-1]", userRepo.deleted)
	}
}

// TestWithdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestWithdraw_UserNotFound(t *testing.T) {
	s := NewService(&mockUserRepo{}, &mockScheduleRepo{}, &mockPrefsRepo{})

	err := s.Withdraw(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing user, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

// TestUpdatePreferences_Upserts は配信設定の更新がUpsertされることを検証する。
func TestUpdatePreferences_Upserts(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	prefsRepo := &mockPrefsRepo{}
	s := NewService(userRepo, &mockScheduleRepo{}, prefsRepo)

	err := s.UpdatePreferences(context.Background(), "user-1", &model.Preferences{
		Language:           "ja",
		TranslationEnabled: true,
		MaxItems:           10,
	})
	if err != nil {
		t.Fatalf("UpdatePreferences() error = %v", err)
	}

	if len(prefsRepo.upserted) != 1 {
		t.Fatalf("upserted %d preferences, want 1", len(prefsRepo.upserted))
	}
	got := prefsRepo.upserted[0]
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.UserID)
	}
	if got.Language != "ja" || !got.TranslationEnabled || got.MaxItems != 10 {
		t.Errorf("prefs = %+v", got)
	}
}

// TestUpdatePreferences_UserNotFound は存在しないユーザーの設定更新がエラーになることを検証する。
func TestUpdatePreferences_UserNotFound(t *testing.T) {
	s := NewService(&mockUserRepo{}, &mockScheduleRepo{}, &mockPrefsRepo{})

	err := s.UpdatePreferences(context.Background(), "missing", model.DefaultPreferences("missing"))
	if err == nil {
		t.Fatal("expected error for missing user, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}
