// Package deliver はユーザーごとの記事配信サイクルを提供する。
// スケジューラと、クレーム取得から配信実績記録までを司るオーケストレータを含む。
package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/notifier"
	"github.com/hitoshi/newsbot/internal/repository"
)

// ArticleProcessor は配信前のテキスト処理インターフェース。processor.Processorが実装する。
type ArticleProcessor interface {
	Process(ctx context.Context, article *model.ArticleWithFeed, prefs *model.Preferences) *model.ProcessedArticle
}

// DeliveryRecorder は配信結果の計上先。metrics.Collectorが実装する。
type DeliveryRecorder interface {
	RecordDeliveryCycle(userID string)
	RecordDeliveryFailure(userID string)
	RecordArticlesDelivered(count int)
}

// Orchestrator は1ユーザー分の配信サイクルを実行する。
//
// サイクルは以下の順に進む:
//  1. スケジュール行の排他クレームを取得する（取得できなければ何もしない）
//  2. 未配信記事を公開日時の古い順に取得する
//  3. 各記事を配信設定に従って加工する
//  4. 記事を1件ずつ送信し、成功した件数分だけ配信実績を記録する
//  5. 1件以上送信できた（または送るものがなかった）場合はlast_deliveryを進めて
//     クレームを解放する。1件も送信できなかった場合はlast_deliveryを進めずに
//     解放し、次のtickで再試行させる
//
// 送信と実績記録の間でクラッシュした場合、実績のない記事は次サイクルで
// 再送される。二重送信よりも配信漏れの方を避ける設計とする。
type Orchestrator struct {
	scheduleRepo repository.ScheduleRepository
	prefsRepo    repository.PreferencesRepository
	userRepo     repository.UserRepository
	deliveryRepo repository.DeliveryRepository
	processor    ArticleProcessor
	notifier     notifier.Notifier
	metrics      DeliveryRecorder
	logger       *slog.Logger
	claimTTL     time.Duration
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator(
	scheduleRepo repository.ScheduleRepository,
	prefsRepo repository.PreferencesRepository,
	userRepo repository.UserRepository,
	deliveryRepo repository.DeliveryRepository,
	processor ArticleProcessor,
	n notifier.Notifier,
	metrics DeliveryRecorder,
	logger *slog.Logger,
	claimTTL time.Duration,
) *Orchestrator {
	return &Orchestrator{
		scheduleRepo: scheduleRepo,
		prefsRepo:    prefsRepo,
		userRepo:     userRepo,
		deliveryRepo: deliveryRepo,
		processor:    processor,
		notifier:     n,
		metrics:      metrics,
		logger:       logger,
		claimTTL:     claimTTL,
	}
}

// DeliverToUser は指定ユーザーの定期配信サイクルを1回実行する。
// クレームを取得できなかった場合（他ワーカーが処理中、期限未到来、無効化済み）は
// 何もせずnilを返す。
func (o *Orchestrator) DeliverToUser(ctx context.Context, userID string) error {
	claimed, err := o.scheduleRepo.Claim(ctx, userID, o.claimTTL)
	if err != nil {
		return fmt.Errorf("配信クレームの取得に失敗: %w", err)
	}
	if !claimed {
		return nil
	}

	return o.deliverClaimed(ctx, userID)
}

// DeliverNow は指定ユーザーの配信サイクルを即時実行する。
// スケジュールの有効/無効と配信期限は判定せず、未配信記事をその場で配信する。
// 他のワーカーが同一ユーザーを配信中の場合のみクレームに失敗し、何もせずnilを返す。
func (o *Orchestrator) DeliverNow(ctx context.Context, userID string) error {
	claimed, err := o.scheduleRepo.ClaimImmediate(ctx, userID, o.claimTTL)
	if err != nil {
		return fmt.Errorf("配信クレームの取得に失敗: %w", err)
	}
	if !claimed {
		o.logger.Info("他のワーカーが配信中のため即時配信をスキップします",
			slog.String("user_id", userID),
		)
		return nil
	}

	return o.deliverClaimed(ctx, userID)
}

// deliverClaimed はクレーム取得後の配信処理を実行する。
// サイクルが失敗した場合はクレームを解放し、DeliveryErrorとして返す。
func (o *Orchestrator) deliverClaimed(ctx context.Context, userID string) error {
	if o.metrics != nil {
		o.metrics.RecordDeliveryCycle(userID)
	}

	if err := o.runCycle(ctx, userID); err != nil {
		if o.metrics != nil {
			o.metrics.RecordDeliveryFailure(userID)
		}
		// last_deliveryを進めずにクレームを解放し、次のtickで再試行させる
		if releaseErr := o.scheduleRepo.Release(ctx, userID); releaseErr != nil {
			o.logger.Error("配信クレームの解放に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", releaseErr.Error()),
			)
		}
		return &model.DeliveryError{UserID: userID, Err: err}
	}

	return nil
}

// runCycle はクレーム取得済みのユーザーに対して配信本体を実行する。
// 正常終了時はComplete（last_delivery更新）まで行う。
func (o *Orchestrator) runCycle(ctx context.Context, userID string) error {
	user, err := o.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user not found: %s", userID)
	}

	prefs, err := o.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("配信設定の取得に失敗: %w", err)
	}
	if prefs == nil {
		prefs = model.DefaultPreferences(userID)
	}

	articles, err := o.deliveryRepo.ListUndelivered(ctx, userID, prefs.MaxItems)
	if err != nil {
		return fmt.Errorf("未配信記事の取得に失敗: %w", err)
	}

	if len(articles) == 0 {
		// 送るものがないサイクルも完了扱いとし、last_deliveryを進める。
		// そうしないと記事のないユーザーが毎tickクレームを取り続ける。
		o.logger.Info("未配信の記事はありません", slog.String("user_id", userID))
		if err := o.scheduleRepo.Complete(ctx, userID); err != nil {
			return fmt.Errorf("配信完了の記録に失敗: %w", err)
		}
		return nil
	}

	processed := make([]*model.ProcessedArticle, 0, len(articles))
	for _, article := range articles {
		processed = append(processed, o.processor.Process(ctx, article, prefs))
	}

	sent, sendErr := o.notifier.Send(ctx, user.ChatID, processed)

	// 送信に成功した分だけ配信実績を記録する。途中失敗時も成功分は記録し、
	// 同一記事の二重送信を防ぐ。
	marked := 0
	for i := 0; i < sent; i++ {
		created, err := o.deliveryRepo.MarkDelivered(ctx, userID, processed[i].ArticleID)
		if err != nil {
			o.logger.Error("配信実績の記録に失敗しました",
				slog.String("user_id", userID),
				slog.String("article_id", processed[i].ArticleID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if created {
			marked++
		}
	}

	if o.metrics != nil {
		o.metrics.RecordArticlesDelivered(sent)
	}

	if sendErr != nil && sent == 0 {
		return fmt.Errorf("記事を1件も送信できませんでした: %w", sendErr)
	}

	if sendErr != nil {
		o.logger.Warn("配信サイクルの途中で送信に失敗しました",
			slog.String("user_id", userID),
			slog.Int("sent", sent),
			slog.Int("total", len(processed)),
			slog.String("error", sendErr.Error()),
		)
	} else {
		o.logger.Info("配信サイクルが完了しました",
			slog.String("user_id", userID),
			slog.Int("sent", sent),
			slog.Int("marked", marked),
		)
	}

	// 1件以上送信できていれば部分的な成功としてlast_deliveryを進める
	if err := o.scheduleRepo.Complete(ctx, userID); err != nil {
		return fmt.Errorf("配信完了の記録に失敗: %w", err)
	}

	return nil
}
