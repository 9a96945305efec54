// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Telegram
	TelegramBotToken string
	TelegramAPIBase  string

	// Fetch（フィードポーリング）
	FetchTimeout        time.Duration
	FetchMaxSize        int64
	FetchMaxConcurrent  int
	FetchTick           time.Duration
	PollIntervalMinutes int

	// Deliver（ユーザー配信）
	DeliverTick          time.Duration
	DeliverMaxConcurrent int
	ClaimTTL             time.Duration

	// LLM（翻訳・要約）
	LLMAPIKey           string
	LLMEndpoint         string
	LLMModel            string
	LLMTimeout          time.Duration
	LLMRatePerSecond    float64
	LLMBurst            int
	SummarizeThreshold  int
	SummarizeMaxLength  int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// LLM_API_KEYは任意であり、未設定の場合は翻訳・要約が無効になる（劣化動作）。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TelegramAPIBase = getEnvString("TELEGRAM_API_BASE", "https://api.telegram.org")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchTick = getEnvDuration("FETCH_TICK", 5*time.Minute)
	cfg.PollIntervalMinutes = getEnvInt("POLL_INTERVAL_MINUTES", 30)
	cfg.DeliverTick = getEnvDuration("DELIVER_TICK", time.Minute)
	cfg.DeliverMaxConcurrent = getEnvInt("DELIVER_MAX_CONCURRENT", 10)
	cfg.ClaimTTL = getEnvDuration("CLAIM_TTL", 10*time.Minute)
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.LLMEndpoint = getEnvString("LLM_ENDPOINT", "https://api.openai.com/v1/chat/completions")
	cfg.LLMModel = getEnvString("LLM_MODEL", "gpt-3.5-turbo")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 20*time.Second)
	cfg.LLMRatePerSecond = getEnvFloat("LLM_RATE_PER_SECOND", 1)
	cfg.LLMBurst = getEnvInt("LLM_BURST", 3)
	cfg.SummarizeThreshold = getEnvInt("SUMMARIZE_THRESHOLD", 400)
	cfg.SummarizeMaxLength = getEnvInt("SUMMARIZE_MAX_LENGTH", 200)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
