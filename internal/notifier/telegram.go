// Package notifier はTelegram Bot APIによる記事配信を提供する。
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/newsbot/internal/model"
)

// Notifier は加工済み記事をユーザーへ送信するインターフェース。
type Notifier interface {
	// Send は記事を1件ずつ順に送信し、送信に成功した件数を返す。
	// 途中で失敗した場合は、その時点までの成功件数とエラーを返す。
	// 呼び出し側は成功件数分だけ配信実績を記録することで、
	// 同一記事の二重送信を防ぐ。
	Send(ctx context.Context, chatID string, articles []*model.ProcessedArticle) (int, error)
}

// TelegramNotifier はTelegram Bot APIのsendMessageを使用するNotifier実装。
type TelegramNotifier struct {
	apiBase    string
	botToken   string
	httpClient *http.Client
}

// NewTelegramNotifier はTelegramNotifierを生成する。
// apiBaseは通常 "https://api.telegram.org" を指定する（テスト時に差し替え可能）。
func NewTelegramNotifier(apiBase, botToken string, timeout time.Duration) *TelegramNotifier {
	return &TelegramNotifier{
		apiBase:  strings.TrimRight(apiBase, "/"),
		botToken: botToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// sendMessageRequest はTelegram sendMessage APIのリクエストボディ。
type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// sendMessageResponse はTelegram APIの共通レスポンス。
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send は記事を1件ずつ順に送信する。
func (n *TelegramNotifier) Send(ctx context.Context, chatID string, articles []*model.ProcessedArticle) (int, error) {
	if n.botToken == "" {
		return 0, fmt.Errorf("telegram bot token is not configured")
	}

	sent := 0
	for _, article := range articles {
		if err := n.sendMessage(ctx, chatID, formatArticle(article)); err != nil {
			return sent, fmt.Errorf("記事の送信に失敗しました (article_id=%s): %w", article.ArticleID, err)
		}
		sent++
	}

	return sent, nil
}

// sendMessage はTelegram sendMessage APIを1回呼び出す。
func (n *TelegramNotifier) sendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: false,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode sendMessage response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram rejected message: %s", parsed.Description)
	}

	return nil
}

// formatArticle は記事1件をTelegram用のHTMLメッセージへ整形する。
func formatArticle(article *model.ProcessedArticle) string {
	var b strings.Builder

	b.WriteString("<b>")
	b.WriteString(escapeHTML(article.Title))
	b.WriteString("</b>\n")

	if article.FeedName != "" {
		b.WriteString(escapeHTML(article.FeedName))
		b.WriteString(" | ")
	}
	b.WriteString(article.PublishedAt.Format("2006-01-02 15:04"))
	b.WriteString("\n\n")

	if article.Description != "" {
		b.WriteString(escapeHTML(article.Description))
		b.WriteString("\n\n")
	}

	b.WriteString(article.Link)

	return b.String()
}

// escapeHTML はTelegramのHTMLパースモードで特別扱いされる文字をエスケープする。
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// compile-time interface check
var _ Notifier = (*TelegramNotifier)(nil)
