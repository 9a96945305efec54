package fetch

import (
	"testing"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// TestClassifyHTTPStatus はHTTPステータスの分類を検証する。
// 永続的な停止分類は存在せず、エラーはすべてバックオフになる。
func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   PollResult
	}{
		{200, PollResultOK},
		{404, PollResultBackoff},
		{403, PollResultBackoff},
		{410, PollResultBackoff},
		{429, PollResultBackoff},
		{500, PollResultBackoff},
		{503, PollResultBackoff},
		{301, PollResultUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestCalculateBackoff は指数バックオフの増加と上限を検証する。
func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		consecutiveErrors int
		want              time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour},
		{10, 12 * time.Hour},
	}

	for _, tt := range tests {
		if got := CalculateBackoff(tt.consecutiveErrors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.consecutiveErrors, got, tt.want)
		}
	}
}

// TestApplyBackoff は連続エラー回数の増加とnext_poll_atの設定を検証する。
func TestApplyBackoff(t *testing.T) {
	feed := &model.Feed{ID: "feed-1", ConsecutiveErrors: 0}

	before := time.Now()
	ApplyBackoff(feed, "HTTPリクエスト失敗")

	if feed.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", feed.ConsecutiveErrors)
	}
	if feed.ErrorMessage != "HTTPリクエスト失敗" {
		t.Errorf("ErrorMessage = %q", feed.ErrorMessage)
	}

	wantMin := before.Add(30 * time.Minute)
	if feed.NextPollAt.Before(wantMin) {
		t.Errorf("NextPollAt = %v, want at least %v", feed.NextPollAt, wantMin)
	}
}

// TestApplySuccess は成功時に状態がリセットされることを検証する。
func TestApplySuccess(t *testing.T) {
	feed := &model.Feed{
		ID:                "feed-1",
		ConsecutiveErrors: 3,
		ErrorMessage:      "previous error",
	}

	before := time.Now()
	ApplySuccess(feed, 30)

	if feed.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", feed.ConsecutiveErrors)
	}
	if feed.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", feed.ErrorMessage)
	}
	if feed.LastPolledAt == nil {
		t.Fatal("LastPolledAt should be set")
	}

	wantMin := before.Add(30 * time.Minute)
	if feed.NextPollAt.Before(wantMin) {
		t.Errorf("NextPollAt = %v, want at least %v", feed.NextPollAt, wantMin)
	}
}
