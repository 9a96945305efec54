package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsbot/internal/middleware"
	"github.com/hitoshi/newsbot/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// AddFeed はフィードを購読させる。未登録のフィードは作成する（冪等）。
	AddFeed(ctx context.Context, userID, rawURL string) (*model.Feed, error)
	// RemoveFeed はフィードの購読を解除する。
	RemoveFeed(ctx context.Context, userID, feedID string) error
	// ListFeeds は購読中のフィード一覧を返す。
	ListFeeds(ctx context.Context, userID string) ([]*model.Feed, error)
}

// FeedHandler はフィード購読管理のHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface) *FeedHandler {
	return &FeedHandler{
		service: service,
	}
}

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID                string     `json:"id"`
	FeedURL           string     `json:"feed_url"`
	Name              string     `json:"name"`
	LastPolledAt      *time.Time `json:"last_polled_at,omitempty"`
	NextPollAt        time.Time  `json:"next_poll_at"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// addFeedRequest はフィード購読リクエストのボディ。
type addFeedRequest struct {
	FeedURL string `json:"feed_url"`
}

func toFeedResponse(f *model.Feed) feedResponse {
	return feedResponse{
		ID:                f.ID,
		FeedURL:           f.FeedURL,
		Name:              f.Name,
		LastPolledAt:      f.LastPolledAt,
		NextPollAt:        f.NextPollAt,
		ConsecutiveErrors: f.ConsecutiveErrors,
		ErrorMessage:      f.ErrorMessage,
		CreatedAt:         f.CreatedAt,
	}
}

// AddFeed はフィードを購読させる。
// POST /users/{userID}/feeds
func (h *FeedHandler) AddFeed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req addFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.FeedURL == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("feed_urlが指定されていません"))
		return
	}

	f, err := h.service.AddFeed(r.Context(), userID, req.FeedURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toFeedResponse(f))
}

// ListFeeds は購読中のフィード一覧を取得する。
// GET /users/{userID}/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	feeds, err := h.service.ListFeeds(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, toFeedResponse(f))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// RemoveFeed はフィードの購読を解除する。
// DELETE /users/{userID}/feeds/{feedID}
func (h *FeedHandler) RemoveFeed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	feedID := chi.URLParam(r, "feedID")

	if err := h.service.RemoveFeed(r.Context(), userID, feedID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- 共通ヘルパー ---

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeInvalidRequestBody はJSONボディの解析失敗レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidInterval, model.ErrCodeInvalidPreference:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeFeedNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
