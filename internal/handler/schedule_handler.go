package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsbot/internal/model"
)

// ScheduleServiceInterface はスケジュールハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	// SetEnabled は配信の有効/無効を切り替える。
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	// SetInterval は配信間隔を更新する。最小間隔未満は拒否する。
	SetInterval(ctx context.Context, userID string, intervalMinutes int) error
	// Status は現在のスケジュールと導出状態を返す。
	Status(ctx context.Context, userID string) (*model.Schedule, model.ScheduleState, error)
}

// ScheduleHandler は配信スケジュール管理のHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
	}
}

// scheduleResponse はスケジュール情報のAPIレスポンス。
// Stateはdisabled/idle/due/deliveringのいずれか。
type scheduleResponse struct {
	UserID          string     `json:"user_id"`
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastDelivery    *time.Time `json:"last_delivery,omitempty"`
	State           string     `json:"state"`
}

// scheduleRequest はスケジュール更新リクエストのボディ。
// 指定されたフィールドのみ更新する。
type scheduleRequest struct {
	Enabled         *bool `json:"enabled,omitempty"`
	IntervalMinutes *int  `json:"interval_minutes,omitempty"`
}

// Update は配信スケジュールを更新する。
// PUT /users/{userID}/schedule
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	// 間隔のバリデーションを先に行い、部分更新を防ぐ
	if req.IntervalMinutes != nil {
		if err := h.service.SetInterval(r.Context(), userID, *req.IntervalMinutes); err != nil {
			handleServiceError(w, err)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.service.SetEnabled(r.Context(), userID, *req.Enabled); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	h.writeStatus(w, r, userID)
}

// Status は現在の配信スケジュールを取得する。
// GET /users/{userID}/schedule
func (h *ScheduleHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, chi.URLParam(r, "userID"))
}

func (h *ScheduleHandler) writeStatus(w http.ResponseWriter, r *http.Request, userID string) {
	schedule, state, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, scheduleResponse{
		UserID:          schedule.UserID,
		Enabled:         schedule.Enabled,
		IntervalMinutes: schedule.IntervalMinutes,
		LastDelivery:    schedule.LastDelivery,
		State:           string(state),
	})
}
