// Package handler は管理APIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsbot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ユーザー・配信設定
	UserService UserServiceInterface

	// フィード購読
	FeedService FeedServiceInterface

	// 配信スケジュール
	ScheduleService ScheduleServiceInterface

	// 即時配信
	Deliverer UserDeliverer

	// GET /metrics で公開するPrometheusハンドラー
	MetricsHandler http.Handler
}

// NewRouter は管理APIの全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	LoggingMiddleware → RecoveryMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	userHandler := NewUserHandler(deps.UserService)
	feedHandler := NewFeedHandler(deps.FeedService)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	deliveryHandler := NewDeliveryHandler(deps.Deliverer)

	// 死活監視
	r.Get("/health", handleHealth)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// ユーザー管理
	r.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.Register)

		r.Route("/{userID}", func(r chi.Router) {
			r.Delete("/", userHandler.Withdraw)

			// フィード購読
			r.Route("/feeds", func(r chi.Router) {
				r.Get("/", feedHandler.ListFeeds)
				r.Post("/", feedHandler.AddFeed)
				r.Delete("/{feedID}", feedHandler.RemoveFeed)
			})

			// 配信スケジュール
			r.Route("/schedule", func(r chi.Router) {
				r.Get("/", scheduleHandler.Status)
				r.Put("/", scheduleHandler.Update)
			})

			// 配信設定
			r.Put("/preferences", userHandler.UpdatePreferences)

			// 即時配信トリガー
			r.Post("/deliveries", deliveryHandler.Trigger)
		})
	})

	return r
}

// handleHealth はプロセスの死活監視エンドポイント。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
