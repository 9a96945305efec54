package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsbot/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// Create は購読を登録する。同じ(user_id, feed_id)の購読がすでに存在する場合は
// 何もせずfalseを返す。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, feed_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, feed_id) DO NOTHING`,
		sub.ID, sub.UserID, sub.FeedID, sub.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("購読の登録に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Delete は購読を解除する。購読が存在しない場合は何もしない。
func (r *PostgresSubscriptionRepo) Delete(ctx context.Context, userID, feedID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND feed_id = $2`,
		userID, feedID,
	)
	if err != nil {
		return fmt.Errorf("購読の解除に失敗しました: %w", err)
	}
	return nil
}

// ListFeedsByUserID はユーザーが購読しているフィード一覧を取得する。
// 購読登録順に返す。
func (r *PostgresSubscriptionRepo) ListFeedsByUserID(ctx context.Context, userID string) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.feed_url, f.name, f.last_polled_at, f.next_poll_at,
		        f.consecutive_errors, f.error_message, f.created_at, f.updated_at
		 FROM feeds f
		 INNER JOIN subscriptions s ON f.id = s.feed_id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("購読フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("購読フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読フィードの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// Exists は購読関係の有無を返す。
func (r *PostgresSubscriptionRepo) Exists(ctx context.Context, userID, feedID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM subscriptions WHERE user_id = $1 AND feed_id = $2
		 )`,
		userID, feedID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("購読の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
