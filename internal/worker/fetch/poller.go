package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsbot/internal/feed"
	"github.com/hitoshi/newsbot/internal/model"
	"github.com/hitoshi/newsbot/internal/repository"
)

// ArticleIngester は記事保存処理のインターフェース。ingest.Serviceが実装する。
type ArticleIngester interface {
	Ingest(ctx context.Context, feedID string, raws []*model.RawArticle) (int, int, error)
}

// SSRFValidator はSSRF検証のインターフェース。security.SSRFGuardServiceの部分集合。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TextNormalizer はHTML除去のインターフェース。security.TextNormalizerServiceの部分集合。
type TextNormalizer interface {
	Normalize(rawHTML string) string
}

// PollRecorder はポーリング結果の計上先。metrics.Collectorが実装する。
type PollRecorder interface {
	RecordPollSuccess(feedID string)
	RecordPollFailure(feedID string, reason string)
	RecordPollLatency(duration time.Duration)
}

// Poller は個別フィードのHTTPフェッチ、パース、記事保存を行う。
// SSRF検証付きのHTTPクライアントでフィードを取得し、gofeedでパースした
// 記事を正規化してingestサービスへ渡す。
type Poller struct {
	feedRepo        repository.FeedRepository
	ingester        ArticleIngester
	ssrfGuard       SSRFValidator
	normalizer      TextNormalizer
	metrics         PollRecorder
	logger          *slog.Logger
	timeout         time.Duration
	maxBodySize     int64
	intervalMinutes int
}

// NewPoller はPollerの新しいインスタンスを生成する。
// intervalMinutesは成功時の次回ポーリングまでの間隔。
func NewPoller(
	feedRepo repository.FeedRepository,
	ingester ArticleIngester,
	ssrfGuard SSRFValidator,
	normalizer TextNormalizer,
	metrics PollRecorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	intervalMinutes int,
) *Poller {
	return &Poller{
		feedRepo:        feedRepo,
		ingester:        ingester,
		ssrfGuard:       ssrfGuard,
		normalizer:      normalizer,
		metrics:         metrics,
		logger:          logger,
		timeout:         timeout,
		maxBodySize:     maxBodySize,
		intervalMinutes: intervalMinutes,
	}
}

// Poll はフィードをフェッチし、結果に応じてフィード状態を更新する。
// FeedPollerServiceインターフェースを実装する。
// リクエストが送信できなかった場合は原因分類付きのFetchErrorを返す。
// HTTPエラーステータスやパース失敗はバックオフを適用した上で吸収し、nilを返す。
func (p *Poller) Poll(ctx context.Context, f *model.Feed) error {
	start := time.Now()

	// SSRF検証: 登録後にDNS等の状況が変わっている可能性があるため毎回行う
	if err := p.ssrfGuard.ValidateURL(f.FeedURL); err != nil {
		p.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("feed_url", f.FeedURL),
			slog.String("error", err.Error()),
		)
		p.recordFailure(f.ID, "ssrf")
		p.applyBackoffAndSave(ctx, f, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		return model.NewMalformedFetchError(f.FeedURL, err)
	}

	client := p.ssrfGuard.NewSafeClient(p.timeout, p.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.FeedURL, nil)
	if err != nil {
		return model.NewMalformedFetchError(f.FeedURL, err)
	}

	req.Header.Set("User-Agent", "Newsbot/1.0 RSS Bot")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("feed_url", f.FeedURL),
			slog.String("error", err.Error()),
		)
		p.recordFailure(f.ID, "network")
		p.applyBackoffAndSave(ctx, f, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		return model.NewNetworkFetchError(f.FeedURL, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordPollLatency(duration)
	}

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case PollResultOK:
		// 以下で処理を続行
	case PollResultBackoff:
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		p.logger.Warn("フィードポーリングにバックオフを適用します",
			slog.String("feed_id", f.ID),
			slog.String("feed_url", f.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", f.ConsecutiveErrors+1),
		)
		p.recordFailure(f.ID, "http_status")
		p.applyBackoffAndSave(ctx, f, reason)
		return nil
	default:
		p.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_id", f.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		p.recordFailure(f.ID, "http_status")
		p.applyBackoffAndSave(ctx, f, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		return nil
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodySize))
	if err != nil {
		p.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("error", err.Error()),
		)
		p.recordFailure(f.ID, "network")
		p.applyBackoffAndSave(ctx, f, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		return nil
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		p.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("feed_url", f.FeedURL),
			slog.String("error", err.Error()),
		)
		p.recordFailure(f.ID, "malformed")
		p.applyBackoffAndSave(ctx, f, fmt.Sprintf("パース失敗: %s", err.Error()))
		return nil
	}

	// フィード名の更新: フィード自身が宣言するタイトルを正とする
	if name := feed.DeriveFeedName(parsedFeed.Title, f.FeedURL); name != f.Name {
		f.Name = name
	}

	raws := p.convertItems(parsedFeed.Items)

	inserted, skipped, err := p.ingester.Ingest(ctx, f.ID, raws)
	if err != nil {
		p.logger.Error("記事の取り込みに失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("error", err.Error()),
		)
		p.recordFailure(f.ID, "ingest")
		p.applyBackoffAndSave(ctx, f, fmt.Sprintf("記事取り込み失敗: %s", err.Error()))
		return nil
	}

	ApplySuccess(f, p.intervalMinutes)
	if p.metrics != nil {
		p.metrics.RecordPollSuccess(f.ID)
	}

	if updateErr := p.feedRepo.UpdatePollState(ctx, f); updateErr != nil {
		p.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	if updateErr := p.feedRepo.UpdateName(ctx, f.ID, f.Name); updateErr != nil {
		p.logger.Error("フィード名の更新に失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("error", updateErr.Error()),
		)
	}

	p.logger.Info("フィードポーリングが完了しました",
		slog.String("feed_id", f.ID),
		slog.String("feed_url", f.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("articles_inserted", inserted),
		slog.Int("articles_skipped", skipped),
		slog.Int("articles_total", len(raws)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// applyBackoffAndSave はバックオフ適用とフィード状態保存をまとめて行う。
func (p *Poller) applyBackoffAndSave(ctx context.Context, f *model.Feed, reason string) {
	ApplyBackoff(f, reason)
	if err := p.feedRepo.UpdatePollState(ctx, f); err != nil {
		p.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", f.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Poller) recordFailure(feedID, reason string) {
	if p.metrics != nil {
		p.metrics.RecordPollFailure(feedID, reason)
	}
}

// convertItems はgofeedの記事をmodel.RawArticleに変換する。
// リンクは重複排除キーとして使うため正規化し、本文はHTMLを除去した
// プレーンテキストに正規化する。公開日時が取れない記事は現在時刻で
// 補完し、推定フラグを立てる。
func (p *Poller) convertItems(items []*gofeed.Item) []*model.RawArticle {
	now := time.Now()
	raws := make([]*model.RawArticle, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		raw := &model.RawArticle{
			Title:       p.normalizer.Normalize(item.Title),
			Link:        feed.CanonicalizeLink(item.Link),
			Description: p.normalizer.Normalize(item.Description),
		}

		// 本文が空の場合はContentを使用
		if raw.Description == "" && item.Content != "" {
			raw.Description = p.normalizer.Normalize(item.Content)
		}

		// 公開日時: Published、Updatedの順で採用し、どちらもなければ現在時刻で推定
		switch {
		case item.PublishedParsed != nil:
			raw.PublishedAt = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			raw.PublishedAt = *item.UpdatedParsed
		default:
			raw.PublishedAt = now
			raw.IsDateEstimated = true
		}

		raws = append(raws, raw)
	}

	return raws
}
