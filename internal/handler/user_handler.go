package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsbot/internal/middleware"
	"github.com/hitoshi/newsbot/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Register はチャットIDでユーザーを登録する。登録済みの場合は既存ユーザーを返す（冪等）。
	Register(ctx context.Context, chatID, username string) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。購読・配信実績・設定はCASCADE削除される。
	Withdraw(ctx context.Context, userID string) error
	// UpdatePreferences はユーザーの配信設定を更新する。
	UpdatePreferences(ctx context.Context, userID string, prefs *model.Preferences) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	ChatID   string `json:"chat_id"`
	Username string `json:"username"`
}

// preferencesRequest は配信設定更新リクエストのボディ。
type preferencesRequest struct {
	Language           string `json:"language"`
	TranslationEnabled bool   `json:"translation_enabled"`
	MaxItems           int    `json:"max_items"`
}

// languagePattern はISO 639-1言語コードの形式。
var languagePattern = regexp.MustCompile(`^[a-z]{2}$`)

// 1回の配信で送信できる記事数の上限。
const maxItemsLimit = 20

// Register はユーザーを登録する。
// POST /users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.ChatID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "chat_idが指定されていません。",
			Category: "validation",
			Action:   "チャットIDを指定してください。",
		})
		return
	}

	u, err := h.service.Register(r.Context(), req.ChatID, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, userResponse{
		ID:        u.ID,
		ChatID:    u.ChatID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /users/{userID}
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdatePreferences はユーザーの配信設定を更新する。
// PUT /users/{userID}/preferences
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if !languagePattern.MatchString(req.Language) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidPreferenceError("言語コードはISO 639-1形式（例: en, ja）で指定してください"))
		return
	}
	if req.MaxItems < 1 || req.MaxItems > maxItemsLimit {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidPreferenceError("最大配信件数が範囲外です"))
		return
	}

	prefs := &model.Preferences{
		UserID:             userID,
		Language:           req.Language,
		TranslationEnabled: req.TranslationEnabled,
		MaxItems:           req.MaxItems,
	}
	if err := h.service.UpdatePreferences(r.Context(), userID, prefs); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, preferencesRequest{
		Language:           prefs.Language,
		TranslationEnabled: prefs.TranslationEnabled,
		MaxItems:           prefs.MaxItems,
	})
}
