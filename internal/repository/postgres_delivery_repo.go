package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsbot/internal/model"
)

// PostgresDeliveryRepo はPostgreSQLを使用した配信実績リポジトリ。
type PostgresDeliveryRepo struct {
	db *sql.DB
}

// NewPostgresDeliveryRepo はPostgresDeliveryRepoを生成する。
func NewPostgresDeliveryRepo(db *sql.DB) *PostgresDeliveryRepo {
	return &PostgresDeliveryRepo{db: db}
}

// ListUndelivered はユーザーが購読するフィードの記事のうち未配信のものを
// 公開日時の古い順にlimit件まで取得する。
// 配信実績テーブルとのLEFT JOINで未配信を判定するため、購読解除後に
// 再購読しても配信済み記事が再び配信されることはない。
func (r *PostgresDeliveryRepo) ListUndelivered(ctx context.Context, userID string, limit int) ([]*model.ArticleWithFeed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.feed_id, a.title, a.link, a.description,
		        a.published_at, a.is_date_estimated, a.fetched_at, a.created_at,
		        f.name
		 FROM articles a
		 INNER JOIN feeds f ON a.feed_id = f.id
		 INNER JOIN subscriptions s ON s.feed_id = a.feed_id AND s.user_id = $1
		 LEFT JOIN deliveries d ON d.article_id = a.id AND d.user_id = $1
		 WHERE d.article_id IS NULL
		 ORDER BY a.published_at ASC, a.created_at ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未配信記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []*model.ArticleWithFeed
	for rows.Next() {
		item := &model.ArticleWithFeed{}
		if err := rows.Scan(
			&item.ID, &item.FeedID, &item.Title, &item.Link, &item.Description,
			&item.PublishedAt, &item.IsDateEstimated, &item.FetchedAt, &item.CreatedAt,
			&item.FeedName,
		); err != nil {
			return nil, fmt.Errorf("未配信記事の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("未配信記事の走査に失敗しました: %w", err)
	}

	return articles, nil
}

// MarkDelivered は配信実績を記録する。すでに記録済みの場合は何もせずfalseを返す。
// (user_id, article_id)の主キー制約が「同一ユーザーへの最大1回配信」を保証する。
func (r *PostgresDeliveryRepo) MarkDelivered(ctx context.Context, userID, articleID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO deliveries (user_id, article_id, delivered_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, article_id) DO NOTHING`,
		userID, articleID,
	)
	if err != nil {
		return false, fmt.Errorf("配信実績の記録に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// compile-time interface check
var _ DeliveryRepository = (*PostgresDeliveryRepo)(nil)
