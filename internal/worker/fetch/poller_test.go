package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/security"
)

// permissiveSSRFGuard はテスト用のSSRF検証実装。
// httptestサーバーはループバックで起動するため、本物のsafeurlクライアントでは
// 到達できない。検証は素通しし、通常のHTTPクライアントを返す。
type permissiveSSRFGuard struct{}

func (g *permissiveSSRFGuard) ValidateURL(rawURL string) error {
	return nil
}

func (g *permissiveSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// blockingSSRFGuard は常に検証に失敗するSSRF検証実装。
type blockingSSRFGuard struct {
	permissiveSSRFGuard
}

func (g *blockingSSRFGuard) ValidateURL(rawURL string) error {
	return contextError("blocked host")
}

type contextError string

func (e contextError) Error() string { return string(e) }

// mockIngester はArticleIngesterのモック実装。
type mockIngester struct {
	ingested map[string][]*model.RawArticle
}

func (m *mockIngester) Ingest(ctx context.Context, feedID string, raws []*model.RawArticle) (int, int, error) {
	if m.ingested == nil {
		m.ingested = make(map[string][]*model.RawArticle)
	}
	m.ingested[feedID] = raws
	return len(raws), 0, nil
}

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <link>https://example.com</link>
    <item>
      <title>First &amp; Foremost</title>
      <link>https://example.com/news/1?utm_source=rss#frag</link>
      <description>&lt;p&gt;Body of   the first article&lt;/p&gt;</description>
      <pubDate>Mon, 02 Jun 2025 09:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No Date Item</title>
      <link>https://example.com/news/2</link>
      <description>second body</description>
    </item>
  </channel>
</rss>`

func newTestPoller(repo *mockFeedRepo, ingester *mockIngester, guard SSRFValidator) *Poller {
	return NewPoller(
		repo,
		ingester,
		guard,
		security.NewTextNormalizer(),
		nil,
		testLogger(),
		5*time.Second,
		5*1024*1024,
		30,
	)
}

// TestPoll_Success は正常なフィードのポーリングと記事変換を検証する。
func TestPoll_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent header should be set")
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	}))
	defer ts.Close()

	repo := &mockFeedRepo{}
	ingester := &mockIngester{}
	p := newTestPoller(repo, ingester, &permissiveSSRFGuard{})

	f := &model.Feed{ID: "feed-1", FeedURL: ts.URL}
	if err := p.Poll(context.Background(), f); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	raws := ingester.ingested["feed-1"]
	if len(raws) != 2 {
		t.Fatalf("ingested %d articles, want 2", len(raws))
	}

	// タイトルと本文はHTML除去・エンティティ復号・空白正規化される
	if raws[0].Title != "First & Foremost" {
		t.Errorf("Title = %q", raws[0].Title)
	}
	if raws[0].Description != "Body of the first article" {
		t.Errorf("Description = %q", raws[0].Description)
	}

	// リンクはトラッキングパラメータとフラグメントを除去した正規形になる
	if raws[0].Link != "https://example.com/news/1" {
		t.Errorf("Link = %q, want canonical link", raws[0].Link)
	}

	// 公開日時のない記事は現在時刻で推定される
	if raws[0].IsDateEstimated {
		t.Error("first article has pubDate, should not be estimated")
	}
	if !raws[1].IsDateEstimated {
		t.Error("second article has no date, should be estimated")
	}

	// フィード名はフィードタイトルから更新される
	if f.Name != "Example News" {
		t.Errorf("feed Name = %q, want %q", f.Name, "Example News")
	}

	// 成功後は状態がリセットされる
	if f.ConsecutiveErrors != 0 || f.LastPolledAt == nil {
		t.Error("poll success should reset feed state")
	}
	if len(repo.updatedFeeds) != 1 {
		t.Errorf("UpdatePollState called %d times, want 1", len(repo.updatedFeeds))
	}
}

// TestPoll_ServerError は5xx応答でバックオフが適用されることを検証する。
func TestPoll_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	repo := &mockFeedRepo{}
	p := newTestPoller(repo, &mockIngester{}, &permissiveSSRFGuard{})

	f := &model.Feed{ID: "feed-1", FeedURL: ts.URL}
	if err := p.Poll(context.Background(), f); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if f.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", f.ConsecutiveErrors)
	}
	if !f.NextPollAt.After(time.Now().Add(29 * time.Minute)) {
		t.Errorf("NextPollAt = %v, want backoff of at least 30m", f.NextPollAt)
	}
}

// TestPoll_MalformedFeed はパース不能な応答でバックオフが適用されることを検証する。
// パース失敗は一時的な配信障害の可能性があるため、永続的な停止はしない。
func TestPoll_MalformedFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer ts.Close()

	repo := &mockFeedRepo{}
	ingester := &mockIngester{}
	p := newTestPoller(repo, ingester, &permissiveSSRFGuard{})

	f := &model.Feed{ID: "feed-1", FeedURL: ts.URL}
	if err := p.Poll(context.Background(), f); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if f.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", f.ConsecutiveErrors)
	}
	if len(ingester.ingested) != 0 {
		t.Error("malformed feed should not reach ingest")
	}
}

// TestPoll_SSRFBlocked はSSRF検証失敗時にポーリングが中止され、
// URL不正として分類されたFetchErrorが返ることを検証する。
func TestPoll_SSRFBlocked(t *testing.T) {
	repo := &mockFeedRepo{}
	p := newTestPoller(repo, &mockIngester{}, &blockingSSRFGuard{})

	f := &model.Feed{ID: "feed-1", FeedURL: "http://169.254.169.254/feed"}
	err := p.Poll(context.Background(), f)
	if err == nil {
		t.Fatal("expected error for blocked URL, got nil")
	}

	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %T, want *model.FetchError", err)
	}
	if fetchErr.Reason != model.FetchReasonMalformed {
		t.Errorf("Reason = %q, want %q", fetchErr.Reason, model.FetchReasonMalformed)
	}
	if fetchErr.FeedURL != f.FeedURL {
		t.Errorf("FeedURL = %q, want %q", fetchErr.FeedURL, f.FeedURL)
	}

	if f.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", f.ConsecutiveErrors)
	}
}

// TestPoll_ConnectionFailed は接続失敗時にネットワーク起因として分類された
// FetchErrorが返り、バックオフが適用されることを検証する。
func TestPoll_ConnectionFailed(t *testing.T) {
	// サーバーを停止してから同じURLへポーリングさせる
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	feedURL := ts.URL
	ts.Close()

	repo := &mockFeedRepo{}
	p := newTestPoller(repo, &mockIngester{}, &permissiveSSRFGuard{})

	f := &model.Feed{ID: "feed-1", FeedURL: feedURL}
	err := p.Poll(context.Background(), f)
	if err == nil {
		t.Fatal("expected error for unreachable server, got nil")
	}

	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %T, want *model.FetchError", err)
	}
	if fetchErr.Reason != model.FetchReasonNetwork {
		t.Errorf("Reason = %q, want %q", fetchErr.Reason, model.FetchReasonNetwork)
	}

	if f.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", f.ConsecutiveErrors)
	}
}
