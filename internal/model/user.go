// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// チャットトランスポート側の識別子（ChatID）で初回接触時に作成される。
type User struct {
	ID        string
	ChatID    string
	Username  string
	CreatedAt time.Time
}

// Preferences はユーザーごとの配信設定を表す。1ユーザーにつき1行。
type Preferences struct {
	UserID             string
	Language           string // ISO 639-1 言語コード
	TranslationEnabled bool
	MaxItems           int
	UpdatedAt          time.Time
}

// デフォルトの配信設定値。
const (
	DefaultLanguage = "en"
	DefaultMaxItems = 5
)

// DefaultPreferences は指定ユーザーのデフォルト配信設定を返す。
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:             userID,
		Language:           DefaultLanguage,
		TranslationEnabled: false,
		MaxItems:           DefaultMaxItems,
	}
}
