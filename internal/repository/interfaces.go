// Package repository はデータアクセス層のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// UserRepository はユーザーの永続化を担う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。存在しない場合は(nil, nil)を返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByChatID はチャットIDでユーザーを取得する。存在しない場合は(nil, nil)を返す。
	FindByChatID(ctx context.Context, chatID string) (*model.User, error)
	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
	// DeleteByID はユーザーを削除する。関連データはカスケード削除される。
	DeleteByID(ctx context.Context, id string) error
}

// FeedRepository はフィードの永続化を担う。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。存在しない場合は(nil, nil)を返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)
	// FindByFeedURL はフィードURLでフィードを取得する。存在しない場合は(nil, nil)を返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error)
	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.Feed) error
	// UpdateName はフィード名を更新する。
	UpdateName(ctx context.Context, id string, name string) error
	// ListDueForPoll はポーリング期限が到来し、かつ購読者が存在するフィードを取得する。
	// 取得した行は行ロックされ、他のワーカーからはスキップされる。
	ListDueForPoll(ctx context.Context, limit int) ([]*model.Feed, error)
	// UpdatePollState はポーリング実行後の状態を書き込む。
	UpdatePollState(ctx context.Context, feed *model.Feed) error
}

// SubscriptionRepository はユーザーとフィードの購読関係を担う。
type SubscriptionRepository interface {
	// Create は購読を登録する。すでに存在する場合は何もせずfalseを返す。
	Create(ctx context.Context, sub *model.Subscription) (bool, error)
	// Delete は購読を解除する。存在しない場合は何もしない。
	Delete(ctx context.Context, userID, feedID string) error
	// ListFeedsByUserID はユーザーが購読しているフィード一覧を取得する。
	ListFeedsByUserID(ctx context.Context, userID string) ([]*model.Feed, error)
	// Exists は購読関係の有無を返す。
	Exists(ctx context.Context, userID, feedID string) (bool, error)
}

// ArticleRepository は記事の永続化を担う。
type ArticleRepository interface {
	// InsertIfAbsent は記事を挿入する。同一リンクの記事がすでに存在する場合は
	// 何もせずfalseを返す。
	InsertIfAbsent(ctx context.Context, article *model.Article) (bool, error)
}

// DeliveryRepository は配信実績の永続化を担う。
type DeliveryRepository interface {
	// ListUndelivered はユーザーが購読するフィードの記事のうち未配信のものを
	// 公開日時の古い順にlimit件まで取得する。
	ListUndelivered(ctx context.Context, userID string, limit int) ([]*model.ArticleWithFeed, error)
	// MarkDelivered は配信実績を記録する。すでに記録済みの場合は何もせずfalseを返す。
	MarkDelivered(ctx context.Context, userID, articleID string) (bool, error)
}

// ScheduleRepository は配信スケジュールの永続化を担う。
type ScheduleRepository interface {
	// FindByUserID は指定ユーザーのスケジュールを取得する。存在しない場合は(nil, nil)を返す。
	FindByUserID(ctx context.Context, userID string) (*model.Schedule, error)
	// Create はスケジュールを作成する。
	Create(ctx context.Context, schedule *model.Schedule) error
	// SetEnabled は配信の有効/無効を切り替える。
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	// SetInterval は配信間隔を更新する。
	SetInterval(ctx context.Context, userID string, intervalMinutes int) error
	// ListDueUserIDs は配信期限が到来したユーザーIDの一覧を取得する。
	ListDueUserIDs(ctx context.Context, claimTTL time.Duration, limit int) ([]string, error)
	// Claim は配信サイクルの排他クレームを試みる。クレームに成功した場合のみtrueを返す。
	// 他のワーカーがクレーム中、期限未到来、無効化済みの場合はfalseを返す。
	// claimTTLを超過した古いクレームは失効扱いとなり再クレームできる。
	Claim(ctx context.Context, userID string, claimTTL time.Duration) (bool, error)
	// ClaimImmediate は即時配信用の排他クレームを試みる。Claimと異なり
	// 有効/無効と配信期限は判定せず、他のワーカーがクレーム中の場合のみfalseを返す。
	// claimTTLを超過した古いクレームは失効扱いとなり再クレームできる。
	ClaimImmediate(ctx context.Context, userID string, claimTTL time.Duration) (bool, error)
	// Complete は配信サイクルの完了を記録し、last_deliveryを現在時刻に進める。
	Complete(ctx context.Context, userID string) error
	// Release はlast_deliveryを進めずにクレームを解放する。
	Release(ctx context.Context, userID string) error
}

// PreferencesRepository は配信設定の永続化を担う。
type PreferencesRepository interface {
	// FindByUserID は指定ユーザーの設定を取得する。存在しない場合は(nil, nil)を返す。
	FindByUserID(ctx context.Context, userID string) (*model.Preferences, error)
	// Upsert は設定を作成または更新する。
	Upsert(ctx context.Context, prefs *model.Preferences) error
}
