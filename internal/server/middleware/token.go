package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/agora-social/agora-admin/internal/service"
)

// ExtractToken returns the session token carried by a request's headers. An
// "Authorization: Bearer" header wins over the session cookie. It returns ""
// when neither is present.
func ExtractToken(header http.Header, cookieName string) string {
	if auth := header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	if cookieName == "" {
		return ""
	}
	for _, line := range header.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == cookieName && c.Value != "" {
				return c.Value
			}
		}
	}
	return ""
}

// ClientIP returns the request's remote address without the port. Behind a
// proxy it relies on chi's RealIP having rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestMeta collects the client metadata recorded with sessions and audit
// entries.
func RequestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IPAddress:         ClientIP(r),
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: r.Header.Get("X-Device-Fingerprint"),
	}
}
