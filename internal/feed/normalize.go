// Package feed はフィードURLと記事リンクの正規化機能を提供する。
package feed

import (
	"net/url"
	"strings"
)

// trackingParamPrefixes は正規化時に除去するクエリパラメータの接頭辞。
// 同じ記事が流入経路ごとに異なるトラッキングパラメータ付きで配信されるため、
// これらを除去しないとリンクによる重複排除が機能しない。
var trackingParamPrefixes = []string{
	"utm_",
}

// trackingParams は正規化時に除去するクエリパラメータ名。
var trackingParams = map[string]struct{}{
	"fbclid":   {},
	"gclid":    {},
	"mc_cid":   {},
	"mc_eid":   {},
	"ref":      {},
	"source":   {},
	"yclid":    {},
	"_hsenc":   {},
	"_hsmi":    {},
	"igshid":   {},
	"mkt_tok":  {},
	"cmpid":    {},
	"share_id": {},
}

// CanonicalizeLink は記事リンクを重複排除キーとして使える形へ正規化する。
// 以下の変換を行う:
//   - スキームとホストを小文字化
//   - フラグメント（#以降）を除去
//   - トラッキング用クエリパラメータ（utm_*等）を除去
//   - パス末尾のスラッシュを除去（ルートパスを除く）
//
// パースできないリンクは前後の空白を除去してそのまま返す。
func CanonicalizeLink(rawLink string) string {
	link := strings.TrimSpace(rawLink)
	if link == "" {
		return ""
	}

	parsed, err := url.Parse(link)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return link
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for name := range query {
			if isTrackingParam(name) {
				query.Del(name)
			}
		}
		parsed.RawQuery = query.Encode()
	}

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}

	return parsed.String()
}

// isTrackingParam はクエリパラメータ名がトラッキング用かを判定する。
func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := trackingParams[lower]; ok {
		return true
	}
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// DeriveFeedName はフィードの表示名を決定する。
// フィード自身が宣言するタイトルを優先し、空の場合はフィードURLの
// ホスト名にフォールバックする。どちらも取れない場合はURLそのものを返す。
func DeriveFeedName(feedTitle, feedURL string) string {
	title := strings.TrimSpace(feedTitle)
	if title != "" {
		return title
	}

	parsed, err := url.Parse(feedURL)
	if err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}

	return feedURL
}
