package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UserDeliverer は即時配信の実行インターフェース。deliver.Orchestratorが実装する。
type UserDeliverer interface {
	// DeliverNow はスケジュールの有効/無効と配信期限に関係なく
	// 未配信記事を配信する。
	DeliverNow(ctx context.Context, userID string) error
}

// DeliveryHandler は即時配信トリガーのHTTPハンドラー。
type DeliveryHandler struct {
	deliverer UserDeliverer
}

// NewDeliveryHandler はDeliveryHandlerを生成する。
func NewDeliveryHandler(deliverer UserDeliverer) *DeliveryHandler {
	return &DeliveryHandler{
		deliverer: deliverer,
	}
}

// deliveryResponse は即時配信トリガーのAPIレスポンス。
type deliveryResponse struct {
	Status string `json:"status"`
}

// Trigger は指定ユーザーへの配信サイクルを即時実行する。
// 定期配信と異なり、スケジュールが無効・期限未到来でも未配信記事を配信する。
// 他のワーカーが同一ユーザーを配信中の場合のみスキップされる
// （202は「受理」を意味し、配信件数は保証しない）。
// POST /users/{userID}/deliveries
func (h *DeliveryHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.deliverer.DeliverNow(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, deliveryResponse{Status: "accepted"})
}
