package middleware

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"hex-territory/internal/logger"
)

// Allowlist：来源网段白名单
// 背景：引擎部署在网关之后时，只允许网关网段与调试 IP 直接写入；其他来源统一 403
// 约束：单 IP 按 /32 或 /128 处理；来源 IP 取自 ClientIP，可信性依赖网关覆盖代理头
type Allowlist struct {
	prefixes []netip.Prefix
}

// NewAllowlist：解析 CIDR 或单 IP 列表；allowLocal 追加回环地址
func NewAllowlist(entries []string, allowLocal bool) (*Allowlist, error) {
	a := &Allowlist{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("allowlist entry %q: %w", e, err)
			}
			a.prefixes = append(a.prefixes, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", e, err)
		}
		a.prefixes = append(a.prefixes, netip.PrefixFrom(ip.Unmap(), ip.Unmap().BitLen()))
	}
	if allowLocal {
		a.prefixes = append(a.prefixes, netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128"))
	}
	return a, nil
}

// Allowed：判断地址是否落入任一网段；无法解析的地址一律拒绝
func (a *Allowlist) Allowed(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Wrap：a 为 nil 时直接透传
func (a *Allowlist) Wrap(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if a.Allowed(ip) {
			next.ServeHTTP(w, r)
			return
		}
		logger.L().Debug("allowlist_block", "ip", ip)
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"error":"forbidden","code":"FORBIDDEN"}` + "\n"))
	})
}
