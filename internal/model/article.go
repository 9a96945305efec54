// Package model はドメインモデルを定義する。
package model

import "time"

// Article はフィードから取り込んだ記事を表す。
// 正規化済みリンク（Link）がグローバルな重複排除キーであり、保存後は不変。
type Article struct {
	ID              string
	FeedID          string
	Title           string
	Link            string // 正規化済みリンク（トラッキングパラメータ・フラグメント除去済み）
	Description     string // マークアップ除去済みプレーンテキスト
	PublishedAt     time.Time
	IsDateEstimated bool // 公開日時がフィードに無くフェッチ時刻で代用した場合にtrue
	FetchedAt       time.Time
	CreatedAt       time.Time
}

// RawArticle はフェッチャーがパース・正規化した未保存の記事データを表す。
// 永続化は呼び出し側（IngestService）の責務。
type RawArticle struct {
	Title           string
	Link            string
	Description     string
	PublishedAt     time.Time
	IsDateEstimated bool
}

// ArticleWithFeed は記事と所属フィード名を結合したモデル。
// 未配信記事の取得時にJOINで取得される。
type ArticleWithFeed struct {
	Article
	FeedName string
}

// ProcessedArticle は翻訳・要約処理を適用した配信用の記事を表す。
// 処理が劣化（degrade）した場合は元のコンテンツがそのまま入る。
type ProcessedArticle struct {
	ArticleID   string
	FeedName    string
	Title       string
	Link        string
	Description string
	PublishedAt time.Time
	Translated  bool
	Summarized  bool
}
