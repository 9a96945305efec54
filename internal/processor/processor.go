// Package processor は配信前の記事テキスト処理（要約・翻訳）を提供する。
package processor

import (
	"context"
	"log/slog"

	"github.com/hitoshi/newsbot/internal/model"
)

// TextProcessor はLLMによるテキスト処理のインターフェース。
// llm.Clientが実装する。
type TextProcessor interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	Summarize(ctx context.Context, text string, maxLength int) (string, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// DegradedRecorder は処理劣化の計上先。metrics.Collectorが実装する。
type DegradedRecorder interface {
	RecordProcessingDegraded(op string)
}

// Processor は記事を配信用に加工する。
// LLM処理が失敗した場合でも配信自体は止めず、原文のまま配信する
// （グレースフルデグラデーション）。
type Processor struct {
	llm                TextProcessor
	metrics            DegradedRecorder
	summarizeThreshold int
	summarizeMaxLength int
}

// New はProcessorを生成する。
// llmがnilの場合（APIキー未設定など）、全記事が原文のまま通過する。
func New(llm TextProcessor, metrics DegradedRecorder, summarizeThreshold, summarizeMaxLength int) *Processor {
	return &Processor{
		llm:                llm,
		metrics:            metrics,
		summarizeThreshold: summarizeThreshold,
		summarizeMaxLength: summarizeMaxLength,
	}
}

// Process は記事をユーザーの配信設定に従って加工する。
//
// 処理は要約、翻訳の順に適用する:
//  1. 本文がsummarizeThresholdを超える場合、summarizeMaxLength文字程度へ要約する
//  2. 翻訳が有効な場合、言語を判定し、設定言語と異なるときのみ翻訳する
//
// いずれかの処理が失敗しても残りの処理と配信は継続し、失敗した処理の
// 結果だけが原文のまま残る。エラーは戻り値として返さない。
func (p *Processor) Process(ctx context.Context, article *model.ArticleWithFeed, prefs *model.Preferences) *model.ProcessedArticle {
	result := &model.ProcessedArticle{
		ArticleID:   article.ID,
		FeedName:    article.FeedName,
		Title:       article.Title,
		Link:        article.Link,
		Description: article.Description,
		PublishedAt: article.PublishedAt,
	}

	if p.llm == nil {
		return result
	}

	// 要約: 閾値以下の本文はそのまま
	if len(result.Description) > p.summarizeThreshold {
		summary, err := p.llm.Summarize(ctx, result.Description, p.summarizeMaxLength)
		if err != nil {
			slog.Warn("要約に失敗したため原文のまま配信します",
				"article_id", article.ID,
				"error", err,
			)
			p.recordDegraded("summarize")
		} else {
			result.Description = summary
			result.Summarized = true
		}
	}

	// 翻訳: 設定言語と同一言語の記事は翻訳しない
	if prefs.TranslationEnabled {
		p.translate(ctx, result, prefs.Language)
	}

	return result
}

// translate は記事の言語を判定し、必要な場合のみタイトルと本文を翻訳する。
func (p *Processor) translate(ctx context.Context, result *model.ProcessedArticle, targetLang string) {
	detected, err := p.llm.DetectLanguage(ctx, result.Title+" "+result.Description)
	if err != nil {
		slog.Warn("言語判定に失敗したため翻訳をスキップします",
			"article_id", result.ArticleID,
			"error", err,
		)
		p.recordDegraded("detect_language")
		return
	}

	if detected == targetLang {
		return
	}

	title, err := p.llm.Translate(ctx, result.Title, detected, targetLang)
	if err != nil {
		slog.Warn("タイトルの翻訳に失敗したため原文のまま配信します",
			"article_id", result.ArticleID,
			"error", err,
		)
		p.recordDegraded("translate")
		return
	}

	description := result.Description
	if description != "" {
		translated, err := p.llm.Translate(ctx, description, detected, targetLang)
		if err != nil {
			slog.Warn("本文の翻訳に失敗したため原文のまま配信します",
				"article_id", result.ArticleID,
				"error", err,
			)
			p.recordDegraded("translate")
			return
		}
		description = translated
	}

	result.Title = title
	result.Description = description
	result.Translated = true
}

func (p *Processor) recordDegraded(op string) {
	if p.metrics != nil {
		p.metrics.RecordProcessingDegraded(op)
	}
}
