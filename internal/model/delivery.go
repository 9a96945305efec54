// Package model はドメインモデルを定義する。
package model

import "time"

// DeliveryRecord は (user, article) ペアの配信実績を表す。
// (user_id, article_id) で一意であり、これが「1ユーザーに同一記事は最大1回」の
// 不変条件を支える。Notifierへの送信成功後にのみ作成される。
type DeliveryRecord struct {
	UserID      string
	ArticleID   string
	DeliveredAt time.Time
}
