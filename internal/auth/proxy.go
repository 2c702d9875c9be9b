// ABOUTME: Trusted reverse proxy list for resolving the real client address
// ABOUTME: Forwarding headers are only believed when the peer is a configured proxy

package auth

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies holds the peers whose X-Forwarded-For and X-Real-IP headers
// are believed. The zero value trusts nobody.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts IP addresses and CIDR ranges.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var t TrustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return TrustedProxies{}, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			t.prefixes = append(t.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		t.prefixes = append(t.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return t, nil
}

// Trusts reports whether ip belongs to a trusted proxy.
func (t TrustedProxies) Trusts(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP identifies the caller for rate limiting. The connection's remote
// host is used unless it is a trusted proxy, in which case X-Forwarded-For is
// walked from the right to the first untrusted hop, then X-Real-IP is tried.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if len(t.prefixes) == 0 || !t.Trusts(peer) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !t.Trusts(hop) {
				return hop
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

// ClientIP returns the connection's remote host, ignoring forwarding headers.
func ClientIP(r *http.Request) string {
	return TrustedProxies{}.ClientIP(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
