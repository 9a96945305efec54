// Package model はドメインモデルを定義する。
package model

import "time"

// Feed はRSS/Atomフィードを表す。feed_urlで一意であり、全ユーザーで共有される。
type Feed struct {
	ID                string
	FeedURL           string
	Name              string
	LastPolledAt      *time.Time
	NextPollAt        time.Time
	ConsecutiveErrors int
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Subscription はユーザーとフィードの購読関係を表す。
// (user_id, feed_id) で一意。
type Subscription struct {
	ID        string
	UserID    string
	FeedID    string
	CreatedAt time.Time
}
