package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

const feedColumns = `id, feed_url, name, last_polled_at, next_poll_at,
	        consecutive_errors, error_message, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*model.Feed, error) {
	feed := &model.Feed{}
	var lastPolledAt sql.NullTime
	var errorMessage sql.NullString

	err := row.Scan(
		&feed.ID, &feed.FeedURL, &feed.Name, &lastPolledAt, &feed.NextPollAt,
		&feed.ConsecutiveErrors, &errorMessage, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastPolledAt.Valid {
		t := lastPolledAt.Time
		feed.LastPolledAt = &t
	}
	feed.ErrorMessage = nullStringValue(errorMessage)

	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`,
		id,
	)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	return feed, nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE feed_url = $1`,
		feedURL,
	)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるフィードの検索に失敗しました: %w", err)
	}

	return feed, nil
}

// Create はフィードを作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (id, feed_url, name, last_polled_at, next_poll_at,
		                    consecutive_errors, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		feed.ID, feed.FeedURL, feed.Name, nullTime(feed.LastPolledAt), feed.NextPollAt,
		feed.ConsecutiveErrors, nullString(feed.ErrorMessage),
		feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateName はフィード名を更新する。
func (r *PostgresFeedRepo) UpdateName(ctx context.Context, id string, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET name = $2, updated_at = now() WHERE id = $1`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("フィード名の更新に失敗しました: %w", err)
	}
	return nil
}

// ListDueForPoll はポーリング対象のフィードを取得する。
// next_poll_at <= now() かつ購読者が存在するフィードを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresFeedRepo) ListDueForPoll(ctx context.Context, limit int) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.feed_url, f.name, f.last_polled_at, f.next_poll_at,
		        f.consecutive_errors, f.error_message, f.created_at, f.updated_at
		 FROM feeds f
		 WHERE f.next_poll_at <= now()
		   AND EXISTS (SELECT 1 FROM subscriptions s WHERE s.feed_id = f.id)
		 ORDER BY f.next_poll_at ASC
		 LIMIT $1
		 FOR UPDATE OF f SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ポーリング対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ポーリング対象フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポーリング対象フィードの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// UpdatePollState はフィードのポーリング状態を更新する。
func (r *PostgresFeedRepo) UpdatePollState(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    last_polled_at = $2,
		    next_poll_at = $3,
		    consecutive_errors = $4,
		    error_message = $5,
		    updated_at = now()
		 WHERE id = $1`,
		feed.ID,
		nullTime(feed.LastPolledAt),
		feed.NextPollAt,
		feed.ConsecutiveErrors,
		nullString(feed.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("ポーリング状態の更新に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
