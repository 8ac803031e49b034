package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/hitoshi/secfeed/internal/model"
)

// loopbackAliases はループバック全体の許可として扱うエントリ。
var loopbackAliases = map[string]bool{
	"localhost":        true,
	"127.0.0.1":        true,
	"::1":              true,
	"::ffff:127.0.0.1": true,
}

// AccessGate は送信元IPアドレスの許可リストを保持する。
// エントリは完全一致のIP、ループバックの別名、CIDRのいずれか。
type AccessGate struct {
	exact    map[string]bool
	networks []*net.IPNet
	loopback bool
}

// NewAccessGate は許可リストからAccessGateを生成する。
// 解釈できないエントリがある場合はエラーを返す。
func NewAccessGate(entries []string) (*AccessGate, error) {
	g := &AccessGate{exact: make(map[string]bool)}
	for _, raw := range entries {
		entry := strings.ToLower(strings.TrimSpace(raw))
		if entry == "" {
			continue
		}
		if loopbackAliases[entry] {
			g.loopback = true
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR in allow list: %q: %w", raw, err)
			}
			g.networks = append(g.networks, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address in allow list: %q", raw)
		}
		g.exact[normalizeIP(ip).String()] = true
	}
	return g, nil
}

// IsAllowed は送信元アドレスが許可リストに含まれるかを判定する。
// addrはIPアドレス、またはhost:port形式のいずれでもよい。
func (g *AccessGate) IsAllowed(addr string) bool {
	ip := net.ParseIP(hostOnly(addr))
	if ip == nil {
		return false
	}
	ip = normalizeIP(ip)

	if g.loopback && ip.IsLoopback() {
		return true
	}
	if g.exact[ip.String()] {
		return true
	}
	for _, network := range g.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware は許可リスト外からのリクエストを403で拒否するミドルウェアを返す。
func (g *AccessGate) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := ClientIP(r)
			if !g.IsAllowed(addr) {
				slog.Warn("access denied",
					slog.String("client_ip", addr),
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(addr))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP はリクエストの送信元IPアドレスを返す。
// X-Forwarded-Forは偽装可能なため参照しない。
func ClientIP(r *http.Request) string {
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// normalizeIP はIPv4射影IPv6アドレスをIPv4表現に揃える。
func normalizeIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
