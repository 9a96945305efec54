package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsbot/internal/model"
)

// PostgresPreferencesRepo はPostgreSQLを使用した配信設定リポジトリ。
type PostgresPreferencesRepo struct {
	db *sql.DB
}

// NewPostgresPreferencesRepo はPostgresPreferencesRepoを生成する。
func NewPostgresPreferencesRepo(db *sql.DB) *PostgresPreferencesRepo {
	return &PostgresPreferencesRepo{db: db}
}

// FindByUserID は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
func (r *PostgresPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	prefs := &model.Preferences{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, language, translation_enabled, max_items, updated_at
		 FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&prefs.UserID, &prefs.Language, &prefs.TranslationEnabled, &prefs.MaxItems, &prefs.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("配信設定の取得に失敗しました: %w", err)
	}

	return prefs, nil
}

// Upsert は設定を作成または更新する。
func (r *PostgresPreferencesRepo) Upsert(ctx context.Context, prefs *model.Preferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, language, translation_enabled, max_items, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		    language = EXCLUDED.language,
		    translation_enabled = EXCLUDED.translation_enabled,
		    max_items = EXCLUDED.max_items,
		    updated_at = EXCLUDED.updated_at`,
		prefs.UserID, prefs.Language, prefs.TranslationEnabled, prefs.MaxItems, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("配信設定の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
