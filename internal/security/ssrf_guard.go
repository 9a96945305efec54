// Package security はフィード取得まわりの防御機能を提供する。
// フィードURLは利用者が自由に登録できる外部入力であり、内部ネットワークへの
// リクエスト誘導（SSRF）と、記事本文へのHTML混入を防ぐ必要がある。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はフィードURLに対するSSRF防止機能のインターフェースを定義する。
// 公開Web上のRSS/Atomフィードだけを取得対象とし、内部ネットワークや
// クラウドメタデータを指すURLを登録時とフェッチ時の両方で遮断する。
type SSRFGuardService interface {
	// NewSafeClient はフィード取得用のHTTPクライアントを生成する。
	// safeurlがDNS解決後のIPアドレスを接続直前に検証するため、
	// 登録後にDNSレコードが差し替えられた場合（DNS再バインディング）も
	// 内部アドレスへの接続は成立しない。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はフィードURLを静的に検証する。
	// スキーム・ホスト・IPアドレスを確認し、フェッチする価値のないURLを
	// リクエスト送信前に弾く。
	ValidateURL(rawURL string) error
}

// feedSchemes はフィードURLとして受け付けるスキーム。
var feedSchemes = []string{"http", "https"}

// blockedNetworks はフィードURLとして拒否するネットワーク範囲。
// 公開フィードがこれらの範囲に存在することはない。
// safeurlはnet.DialerレベルでDNS解決後のIPアドレスも検証するため、
// ここでの静的検証をすり抜けたホスト名も接続時に遮断される。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",     // プライベート (RFC 1918)
	"172.16.0.0/12",  // プライベート (RFC 1918)
	"192.168.0.0/16", // プライベート (RFC 1918)
	"127.0.0.0/8",    // ループバック (RFC 1122)
	"169.254.0.0/16", // リンクローカル。クラウドメタデータIP (169.254.169.254) を含む
	"0.0.0.0/8",      // カレントネットワーク
	"::1/128",        // IPv6ループバック
	"fe80::/10",      // IPv6リンクローカル
	"fc00::/7",       // IPv6ユニークローカル
)

// blockedHostnames はIPアドレス形式でないホスト名のうち拒否するもの。
var blockedHostnames = []string{
	"localhost",
}

func mustParseCIDRs(cidrs ...string) []net.IPNet {
	networks := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, *network)
	}
	return networks
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はフィード取得用のSSRF防止機能付きHTTPクライアントを生成する。
// safeurlのデフォルト設定により、プライベートIP・ループバック・リンクローカル・
// クラウドメタデータIPへの接続がブロックされる。フィードは80/443番ポート以外で
// 配信されることはない前提で、接続先ポートもこの2つに制限する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(feedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL はフィードURLを静的に検証する。
// フィード登録APIとポーリング直前の事前チェックとして使用する。
// DNS解決は行わないため、解決後のIPアドレス検証はNewSafeClientが生成する
// クライアントのDialer側で行われる。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isFeedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, feedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// IPアドレス直書きのフィードURL: ブロック対象CIDRとの照合
	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// isFeedScheme はURLスキームがフィードURLとして許可されるかを検証する。
func isFeedScheme(scheme string) bool {
	for _, allowed := range feedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
