// Package model はドメインモデルを定義する。
package model

import "fmt"

// FetchReason はFetchErrorの原因分類を表す。
type FetchReason string

const (
	// FetchReasonNetwork はネットワーク起因の失敗（接続・タイムアウト・HTTPエラー）。
	FetchReasonNetwork FetchReason = "network"
	// FetchReasonMalformed はフィード内容の不正（パース失敗・無効なURL）。
	FetchReasonMalformed FetchReason = "malformed"
)

// FetchError はフィード取得の失敗を表す。
// フィード単位で隔離され、呼び出し側はポーリングループを止めずに次サイクルで再試行する。
type FetchError struct {
	Reason  FetchReason
	FeedURL string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	return fmt.Sprintf("フィードの取得に失敗しました (%s): %s: %v", e.Reason, e.FeedURL, e.Err)
}

// Unwrap は内部エラーを返す。
func (e *FetchError) Unwrap() error { return e.Err }

// NewNetworkFetchError はネットワーク起因のFetchErrorを生成する。
func NewNetworkFetchError(feedURL string, err error) *FetchError {
	return &FetchError{Reason: FetchReasonNetwork, FeedURL: feedURL, Err: err}
}

// NewMalformedFetchError はフィード内容の不正によるFetchErrorを生成する。
func NewMalformedFetchError(feedURL string, err error) *FetchError {
	return &FetchError{Reason: FetchReasonMalformed, FeedURL: feedURL, Err: err}
}

// ProcessingError は翻訳・要約処理の失敗を表す。
// 記事単位で劣化（元コンテンツのまま配信）し、配信そのものは止めない。
type ProcessingError struct {
	Op  string // detect, translate, summarize
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("記事の%s処理に失敗しました: %v", e.Op, e.Err)
}

// Unwrap は内部エラーを返す。
func (e *ProcessingError) Unwrap() error { return e.Err }

// DeliveryError はユーザー1人分の配信バッチの失敗を表す。
// 該当ユーザーのみが影響を受け、次のスケジューラティックで再試行される。
type DeliveryError struct {
	UserID string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("ユーザーへの配信に失敗しました: %s: %v", e.UserID, e.Err)
}

// Unwrap は内部エラーを返す。
func (e *DeliveryError) Unwrap() error { return e.Err }

// APIError は管理APIの統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeInvalidInterval   = "INVALID_INTERVAL"
	ErrCodeInvalidPreference = "INVALID_PREFERENCE"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeFeedNotFound      = "FEED_NOT_FOUND"
)

// NewInvalidURLError は無効なフィードURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まる公開フィードのURLを指定してください。",
	}
}

// NewInvalidIntervalError は無効な配信間隔エラーを生成する。
func NewInvalidIntervalError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInterval,
		Message:  fmt.Sprintf("無効な配信間隔です: %d分", minutes),
		Category: "validation",
		Action:   fmt.Sprintf("配信間隔は%d分以上で指定してください。", MinIntervalMinutes),
	}
}

// NewInvalidPreferenceError は無効な配信設定エラーを生成する。
func NewInvalidPreferenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreference,
		Message:  fmt.Sprintf("無効な配信設定です: %s", reason),
		Category: "validation",
		Action:   "言語はISO 639-1コード、最大配信件数は1〜20件で指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "user",
		Action:   "ユーザーIDを確認するか、先にユーザー登録を行ってください。",
	}
}

// NewFeedNotFoundError はフィードまたは購読が見つからない場合のエラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: "feed",
		Action:   "購読一覧でフィードIDを確認してください。",
	}
}
