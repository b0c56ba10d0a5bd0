package geolocation

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const fallbackIP = "127.0.0.1"

var ipHeaders = []string{
	"CF-Connecting-IP",
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

// ClientIP returns the first public address found in the proxy headers or
// RemoteAddr. Without one it falls back to RemoteAddr as-is, then 127.0.0.1.
func ClientIP(r *http.Request) string {
	if r == nil {
		return fallbackIP
	}
	for _, header := range ipHeaders {
		if ip, ok := publicIP(headerAddress(r.Header.Get(header))); ok {
			return ip
		}
	}

	remote := remoteHost(r.RemoteAddr)
	if ip, ok := publicIP(remote); ok {
		return ip
	}
	if remote != "" {
		return remote
	}
	return fallbackIP
}

// headerAddress takes the first list entry and unwraps RFC 7239 "for=".
func headerAddress(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 4 && strings.EqualFold(part[:4], "for=") {
			value = strings.Trim(part[4:], `"`)
			break
		}
	}
	if strings.HasPrefix(value, "[") {
		if end := strings.IndexByte(value, ']'); end > 0 {
			return value[1:end]
		}
	}
	return value
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func publicIP(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		if ap, perr := netip.ParseAddrPort(value); perr == nil {
			addr = ap.Addr()
		} else {
			return "", false
		}
	}
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() || addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() || addr.IsUnspecified() || addr.IsMulticast() {
		return "", false
	}
	return addr.String(), true
}
