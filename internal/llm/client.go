// Package llm はOpenAI互換APIを使用したテキスト処理クライアントを提供する。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client はOpenAI互換のchat completions APIを呼び出すクライアント。
// 全リクエストはrate.Limiterで制限され、外部APIへの過剰な
// リクエストを防止する。
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config はClientの設定。
type Config struct {
	Endpoint      string
	Model         string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// NewClient は設定からClientを生成する。
func NewClient(cfg Config) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// chatRequest はchat completions APIのリクエストボディ。
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse はchat completions APIのレスポンスボディ。
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete はユーザープロンプトを送信し、最初の応答テキストを返す。
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Translate はテキストをsourceLangからtargetLangへ翻訳する。
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following text from %s to %s. "+
			"Maintain the original meaning and tone:\n\n%s",
		sourceLang, targetLang, text,
	)
	return c.complete(ctx, prompt)
}

// Summarize はテキストをmaxLength文字程度に要約する。
func (c *Client) Summarize(ctx context.Context, text string, maxLength int) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following text in about %d characters. "+
			"Focus on the main points and key information:\n\n%s",
		maxLength, text,
	)
	return c.complete(ctx, prompt)
}

// DetectLanguage はテキストの言語を判定し、ISO 639-1の言語コードを返す。
// 応答が言語コードとして不正な場合は"en"にフォールバックする。
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Identify the language of the following text and respond with just the "+
			"ISO 639-1 language code (e.g., 'en' for English):\n\n%s",
		text,
	)
	result, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	code := strings.ToLower(strings.TrimSpace(result))
	if len(code) == 0 || len(code) > 5 {
		return "en", nil
	}
	return code, nil
}
