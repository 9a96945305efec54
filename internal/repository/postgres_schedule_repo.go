package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用した配信スケジュールリポジトリ。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// FindByUserID は指定ユーザーのスケジュールを取得する。見つからない場合はnilを返す。
func (r *PostgresScheduleRepo) FindByUserID(ctx context.Context, userID string) (*model.Schedule, error) {
	schedule := &model.Schedule{}
	var lastDelivery, claimedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, enabled, interval_minutes, last_delivery,
		        delivering, claimed_at, updated_at
		 FROM user_schedules WHERE user_id = $1`,
		userID,
	).Scan(
		&schedule.UserID, &schedule.Enabled, &schedule.IntervalMinutes, &lastDelivery,
		&schedule.Delivering, &claimedAt, &schedule.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}

	if lastDelivery.Valid {
		t := lastDelivery.Time
		schedule.LastDelivery = &t
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		schedule.ClaimedAt = &t
	}

	return schedule, nil
}

// Create はスケジュールを作成する。
func (r *PostgresScheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_schedules (user_id, enabled, interval_minutes, last_delivery,
		                             delivering, claimed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		schedule.UserID, schedule.Enabled, schedule.IntervalMinutes,
		nullTime(schedule.LastDelivery),
		schedule.Delivering, nullTime(schedule.ClaimedAt), schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("スケジュールの作成に失敗しました: %w", err)
	}
	return nil
}

// SetEnabled は配信の有効/無効を切り替える。
func (r *PostgresScheduleRepo) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_schedules SET enabled = $2, updated_at = now() WHERE user_id = $1`,
		userID, enabled,
	)
	if err != nil {
		return fmt.Errorf("スケジュールの切り替えに失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("schedule not found: %s", userID)
	}
	return nil
}

// SetInterval は配信間隔を更新する。
func (r *PostgresScheduleRepo) SetInterval(ctx context.Context, userID string, intervalMinutes int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_schedules SET interval_minutes = $2, updated_at = now() WHERE user_id = $1`,
		userID, intervalMinutes,
	)
	if err != nil {
		return fmt.Errorf("配信間隔の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("schedule not found: %s", userID)
	}
	return nil
}

// ListDueUserIDs は配信期限が到来したユーザーIDの一覧を取得する。
// 有効かつ期限到来（未配信ユーザーは即時到来扱い）で、他のワーカーが
// クレーム中でない（または claimTTL を超過した失効クレームの）行が対象。
func (r *PostgresScheduleRepo) ListDueUserIDs(ctx context.Context, claimTTL time.Duration, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id
		 FROM user_schedules
		 WHERE enabled = TRUE
		   AND (delivering = FALSE OR claimed_at IS NULL OR claimed_at < now() - $1::interval)
		   AND (last_delivery IS NULL
		        OR last_delivery + interval_minutes * interval '1 minute' <= now())
		 ORDER BY last_delivery ASC NULLS FIRST
		 LIMIT $2`,
		intervalArg(claimTTL), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("配信対象ユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("配信対象ユーザーの読み取りに失敗しました: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信対象ユーザーの走査に失敗しました: %w", err)
	}

	return userIDs, nil
}

// Claim は配信サイクルの排他クレームを試みる。
// 単一のUPDATE文で期限判定とクレーム取得をアトミックに行うため、
// 複数ワーカーが同時に呼んでも成功するのは1つだけになる。
// クラッシュ等で残った古いクレームはclaimTTL超過後に再クレームできる。
func (r *PostgresScheduleRepo) Claim(ctx context.Context, userID string, claimTTL time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_schedules
		 SET delivering = TRUE, claimed_at = now(), updated_at = now()
		 WHERE user_id = $1
		   AND enabled = TRUE
		   AND (delivering = FALSE OR claimed_at IS NULL OR claimed_at < now() - $2::interval)
		   AND (last_delivery IS NULL
		        OR last_delivery + interval_minutes * interval '1 minute' <= now())`,
		userID, intervalArg(claimTTL),
	)
	if err != nil {
		return false, fmt.Errorf("配信クレームの取得に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ClaimImmediate は即時配信用の排他クレームを試みる。
// 有効/無効と配信期限の条件を外し、排他条件のみを残したClaim。
// 無効スケジュールのユーザーにも即時配信トリガーで未配信記事を届けられる。
func (r *PostgresScheduleRepo) ClaimImmediate(ctx context.Context, userID string, claimTTL time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_schedules
		 SET delivering = TRUE, claimed_at = now(), updated_at = now()
		 WHERE user_id = $1
		   AND (delivering = FALSE OR claimed_at IS NULL OR claimed_at < now() - $2::interval)`,
		userID, intervalArg(claimTTL),
	)
	if err != nil {
		return false, fmt.Errorf("配信クレームの取得に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Complete は配信サイクルの完了を記録する。
// last_deliveryは配信成功後にのみ進む。
func (r *PostgresScheduleRepo) Complete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_schedules
		 SET delivering = FALSE, claimed_at = NULL, last_delivery = now(), updated_at = now()
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("配信完了の記録に失敗しました: %w", err)
	}
	return nil
}

// Release はlast_deliveryを進めずにクレームを解放する。
// 配信が1件も成功しなかったサイクルで使用し、次のtickで再試行させる。
func (r *PostgresScheduleRepo) Release(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_schedules
		 SET delivering = FALSE, claimed_at = NULL, updated_at = now()
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("配信クレームの解放に失敗しました: %w", err)
	}
	return nil
}

// intervalArg はtime.DurationをPostgreSQLのinterval型リテラルに変換する。
func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
