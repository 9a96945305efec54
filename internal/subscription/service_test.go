package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/newsbot/internal/model"
)

// mockUserRepo はUserRepositoryのモック実装。
type mockUserRepo struct {
	user *model.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.user, nil
}
func (m *mockUserRepo) FindByChatID(ctx context.Context, chatID string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error { return nil }
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error    { return nil }

// mockFeedRepo はFeedRepositoryのモック実装。
type mockFeedRepo struct {
	feedsByURL map[string]*model.Feed
	created    []*model.Feed
}

func (m *mockFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	return nil, nil
}
func (m *mockFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	return m.feedsByURL[feedURL], nil
}
func (m *mockFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	m.created = append(m.created, feed)
	return nil
}
func (m *mockFeedRepo) UpdateName(ctx context.Context, id string, name string) error { return nil }
func (m *mockFeedRepo) ListDueForPoll(ctx context.Context, limit int) ([]*model.Feed, error) {
	return nil, nil
}
func (m *mockFeedRepo) UpdatePollState(ctx context.Context, feed *model.Feed) error { return nil }

// mockSubRepo はSubscriptionRepositoryのモック実装。
type mockSubRepo struct {
	createFunc func(ctx context.Context, sub *model.Subscription) (bool, error)
	existsFunc func(ctx context.Context, userID, feedID string) (bool, error)

	created []*model.Subscription
	deleted [][2]string
}

func (m *mockSubRepo) Create(ctx context.Context, sub *model.Subscription) (bool, error) {
	m.created = append(m.created, sub)
	if m.createFunc != nil {
		return m.createFunc(ctx, sub)
	}
	return true, nil
}

func (m *mockSubRepo) Delete(ctx context.Context, userID, feedID string) error {
	m.deleted = append(m.deleted, [2]string{userID, feedID})
	return nil
}

func (m *mockSubRepo) ListFeedsByUserID(ctx context.Context, userID string) ([]*model.Feed, error) {
	return nil, nil
}

func (m *mockSubRepo) Exists(ctx context.Context, userID, feedID string) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, userID, feedID)
	}
	return false, nil
}

// okValidator は常に検証に成功するURLValidator実装。
type okValidator struct{}

func (v *okValidator) ValidateURL(rawURL string) error { return nil }

// ngValidator は常に検証に失敗するURLValidator実装。
type ngValidator struct{}

func (v *ngValidator) ValidateURL(rawURL string) error { return errors.New("blocked host") }

func newTestService(feedRepo *mockFeedRepo, subRepo *mockSubRepo) *Service {
	return NewService(
		&mockUserRepo{user: &model.User{ID: "user-1", ChatID: "chat-1"}},
		feedRepo,
		subRepo,
		&okValidator{},
	)
}

// TestAddFeed_NewFeed は未登録フィードの作成と購読を検証する。
func TestAddFeed_NewFeed(t *testing.T) {
	feedRepo := &mockFeedRepo{feedsByURL: map[string]*model.Feed{}}
	subRepo := &mockSubRepo{}
	s := newTestService(feedRepo, subRepo)

	f, err := s.AddFeed(context.Background(), "user-1", "https://example.com/rss.xml")
	if err != nil {
		t.Fatalf("AddFeed() error = %v", err)
	}

	if len(feedRepo.created) != 1 {
		t.Fatalf("created %d feeds, want 1", len(feedRepo.created))
	}
	if f.FeedURL != "https://example.com/rss.xml" {
		t.Errorf("FeedURL = %q", f.FeedURL)
	}
	// 新規フィードは次のポーリングサイクルで即座にフェッチされる
	if f.NextPollAt.IsZero() {
		t.Error("NextPollAt should be set to now for a new feed")
	}
	// フィード名はポーリングまでの間ホスト名で表示される
	if f.Name != "example.com" {
		t.Errorf("Name = %q, want example.com", f.Name)
	}
	if len(subRepo.created) != 1 {
		t.Fatalf("created %d subscriptions, want 1", len(subRepo.created))
	}
	if subRepo.created[0].FeedID != f.ID {
		t.Error("subscription should reference the created feed")
	}
}

// TestAddFeed_ExistingFeed は登録済みフィードが共有されることを検証する。
func TestAddFeed_ExistingFeed(t *testing.T) {
	existing := &model.Feed{ID: "feed-1", FeedURL: "https://example.com/rss.xml"}
	feedRepo := &mockFeedRepo{
		feedsByURL: map[string]*model.Feed{existing.FeedURL: existing},
	}
	subRepo := &mockSubRepo{}
	s := newTestService(feedRepo, subRepo)

	f, err := s.AddFeed(context.Background(), "user-1", "https://example.com/rss.xml")
	if err != nil {
		t.Fatalf("AddFeed() error = %v", err)
	}

	if f.ID != "feed-1" {
		t.Errorf("feed ID = %q, want existing feed", f.ID)
	}
	if len(feedRepo.created) != 0 {
		t.Error("existing feed should not be re-created")
	}
}

// TestAddFeed_URLCanonicalized はフィードURLが正規化されてから検索されることを検証する。
// トラッキングパラメータ付きのURLでも既存フィードと同一視される。
func TestAddFeed_URLCanonicalized(t *testing.T) {
	existing := &model.Feed{ID: "feed-1", FeedURL: "https://example.com/rss.xml"}
	feedRepo := &mockFeedRepo{
		feedsByURL: map[string]*model.Feed{existing.FeedURL: existing},
	}
	subRepo := &mockSubRepo{}
	s := newTestService(feedRepo, subRepo)

	f, err := s.AddFeed(context.Background(), "user-1", "https://example.com/rss.xml?utm_source=share#top")
	if err != nil {
		t.Fatalf("AddFeed() error = %v", err)
	}
	if f.ID != "feed-1" {
		t.Errorf("feed ID = %q, want existing feed after canonicalization", f.ID)
	}
}

// TestAddFeed_AlreadySubscribed は購読済みフィードの再登録が冪等であることを検証する。
func TestAddFeed_AlreadySubscribed(t *testing.T) {
	existing := &model.Feed{ID: "feed-1", FeedURL: "https://example.com/rss.xml"}
	feedRepo := &mockFeedRepo{
		feedsByURL: map[string]*model.Feed{existing.FeedURL: existing},
	}
	subRepo := &mockSubRepo{
		createFunc: func(ctx context.Context, sub *model.Subscription) (bool, error) {
			return false, nil // 既存
		},
	}
	s := newTestService(feedRepo, subRepo)

	f, err := s.AddFeed(context.Background(), "user-1", "https://example.com/rss.xml")
	if err != nil {
		t.Fatalf("AddFeed() error = %v", err)
	}
	if f.ID != "feed-1" {
		t.Errorf("feed ID = %q", f.ID)
	}
}

// TestAddFeed_InvalidURL は危険なURLがAPIエラーとして拒否されることを検証する。
func TestAddFeed_InvalidURL(t *testing.T) {
	s := NewService(
		&mockUserRepo{user: &model.User{ID: "user-1"}},
		&mockFeedRepo{},
		&mockSubRepo{},
		&ngValidator{},
	)

	_, err := s.AddFeed(context.Background(), "user-1", "http://169.254.169.254/feed")
	if err == nil {
		t.Fatal("expected error for blocked URL, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidURL {
		t.Errorf("err = %v, want INVALID_URL", err)
	}
}

// TestAddFeed_UserNotFound は存在しないユーザーがエラーになることを検証する。
func TestAddFeed_UserNotFound(t *testing.T) {
	s := NewService(&mockUserRepo{}, &mockFeedRepo{}, &mockSubRepo{}, &okValidator{})

	_, err := s.AddFeed(context.Background(), "missing", "https://example.com/rss.xml")
	if err == nil {
		t.Fatal("expected error for missing user, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

// TestRemoveFeed_Subscribed は購読解除が実行されることを検証する。
func TestRemoveFeed_Subscribed(t *testing.T) {
	subRepo := &mockSubRepo{
		existsFunc: func(ctx context.Context, userID, feedID string) (bool, error) {
			return true, nil
		},
	}
	s := newTestService(&mockFeedRepo{}, subRepo)

	if err := s.RemoveFeed(context.Background(), "user-1", "feed-1"); err != nil {
		t.Fatalf("RemoveFeed() error = %v", err)
	}
	if len(subRepo.deleted) != 1 {
		t.Fatalf("deleted %d subscriptions, want 1", len(subRepo.deleted))
	}
}

// TestRemoveFeed_NotSubscribed は未購読フィードの解除がエラーになることを検証する。
func TestRemoveFeed_NotSubscribed(t *testing.T) {
	s := newTestService(&mockFeedRepo{}, &mockSubRepo{})

	err := s.RemoveFeed(context.Background(), "user-1", "feed-unknown")
	if err == nil {
		t.Fatal("expected error for unsubscribed feed, got nil")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFeedNotFound {
		t.Errorf("err = %v, want FEED_NOT_FOUND", err)
	}
}
