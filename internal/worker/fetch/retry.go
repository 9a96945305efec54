package fetch

import (
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// PollResult はHTTPステータスコードに基づくポーリング結果の分類。
type PollResult int

const (
	// PollResultOK はポーリング成功（200）。
	PollResultOK PollResult = iota
	// PollResultBackoff はバックオフが必要なステータス（4xx/5xx）。
	PollResultBackoff
	// PollResultUnknown は未知のステータスコード。
	PollResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
)

// ClassifyHTTPStatus はHTTPステータスコードをポーリング結果に分類する。
// 永続的な停止ステータスは設けない。404や403で応答するフィードも
// 一時的な設定ミスで復活することがあるため、最大12時間のバックオフで
// ポーリングを継続する。
func ClassifyHTTPStatus(statusCode int) PollResult {
	switch {
	case statusCode == 200:
		return PollResultOK
	case statusCode >= 400:
		return PollResultBackoff
	default:
		return PollResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyBackoff はフィードにバックオフ戦略を適用する。
// 連続エラー回数をインクリメントし、指数バックオフでnext_poll_atを設定する。
func ApplyBackoff(feed *model.Feed, reason string) {
	feed.ConsecutiveErrors++
	feed.ErrorMessage = reason
	delay := CalculateBackoff(feed.ConsecutiveErrors - 1)
	feed.NextPollAt = time.Now().Add(delay)
	feed.UpdatedAt = time.Now()
}

// ApplySuccess はポーリング成功時にフィードの状態をリセットする。
// 連続エラー回数を0にリセットし、エラーメッセージをクリアする。
// intervalMinutesに基づいてnext_poll_atを設定し、last_polled_atを記録する。
func ApplySuccess(feed *model.Feed, intervalMinutes int) {
	now := time.Now()
	feed.ConsecutiveErrors = 0
	feed.ErrorMessage = ""
	feed.LastPolledAt = &now
	feed.NextPollAt = now.Add(time.Duration(intervalMinutes) * time.Minute)
	feed.UpdatedAt = now
}
