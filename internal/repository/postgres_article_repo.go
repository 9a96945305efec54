package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsbot/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// InsertIfAbsent は記事を挿入する。同一リンクの記事がすでに存在する場合は
// 何もせずfalseを返す。リンクの一意制約が全フィード横断の重複排除を担う。
func (r *PostgresArticleRepo) InsertIfAbsent(ctx context.Context, article *model.Article) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, feed_id, title, link, description,
		                       published_at, is_date_estimated, fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (link) DO NOTHING`,
		article.ID, article.FeedID, article.Title, article.Link, article.Description,
		article.PublishedAt, article.IsDateEstimated, article.FetchedAt, article.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("記事の挿入に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
