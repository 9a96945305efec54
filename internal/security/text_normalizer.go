package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// TextNormalizerService はフィード記事のHTMLをプレーンテキストへ正規化する
// インターフェースを定義する。配信先はチャットメッセージであり、HTMLを
// 表示できないため、タグを除去したテキストのみを保存する。
type TextNormalizerService interface {
	// Normalize はHTML断片からタグを除去し、エンティティを復号して、
	// 連続する空白を1つにまとめたプレーンテキストを返す。
	// scriptやstyle等の危険なタグもbluemondayのStrictPolicyで除去される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Normalize(rawHTML string) string
}

// textNormalizer はTextNormalizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに正規化処理を行う。
type textNormalizer struct {
	policy *bluemonday.Policy
}

// NewTextNormalizer はTextNormalizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグを除去し、テキストノードのみを残す。
func NewTextNormalizer() *textNormalizer {
	return &textNormalizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Normalize はHTML断片をプレーンテキストへ正規化する。
func (n *textNormalizer) Normalize(rawHTML string) string {
	stripped := n.policy.Sanitize(rawHTML)

	// StrictPolicyはテキストをエンティティエスケープした状態で返すため、
	// &amp; や &#39; 等を元の文字に戻す
	unescaped := html.UnescapeString(stripped)

	return collapseWhitespace(unescaped)
}

// collapseWhitespace は連続する空白文字（改行・タブを含む）を
// 半角スペース1つにまとめ、前後の空白を除去する。
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
