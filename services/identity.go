package services

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/wustream/gate_api/shared"
)

// ExtractApiKey resolves the caller's API key, first non-empty source wins:
// X-Api-Key header, Authorization bearer, api_key query parameter, a key
// attached upstream in the pipeline, then the signed session cookie.
func ExtractApiKey(c *fiber.Ctx, tokenSvc *TokenService) string {
	if key := strings.TrimSpace(c.Get("X-Api-Key")); key != "" {
		return key
	}

	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
			if key := strings.TrimSpace(auth[7:]); key != "" {
				return key
			}
		}
	}

	if key := strings.TrimSpace(c.Query("api_key")); key != "" {
		return key
	}

	if local, ok := c.Locals(shared.ApiKeyLocal).(string); ok && local != "" {
		return local
	}

	if tokenSvc != nil {
		if cookie := c.Cookies(shared.SessionCookieName); cookie != "" {
			if key, err := tokenSvc.VerifySessionCookie(cookie); err == nil {
				return key
			}
		}
	}

	return ""
}

// Identity attributes a request for rate-limit purposes: API key when one is
// present, normalized client address otherwise.
func Identity(c *fiber.Ctx, tokenSvc *TokenService) string {
	if key := ExtractApiKey(c, tokenSvc); key != "" {
		return key
	}
	return ClientIP(c)
}

// ClientIP returns the normalized client network address.
func ClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return normalizeIP(ip)
			}
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return normalizeIP(realIP)
	}

	remote := c.Context().RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remote)
	if err != nil {
		return normalizeIP(remote)
	}

	return normalizeIP(ip)
}

// normalizeIP canonicalizes IPv4-mapped IPv6 addresses to their IPv4 form.
func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	if idx := strings.Index(ip, "::ffff:"); idx >= 0 {
		return ip[idx+len("::ffff:"):]
	}
	return ip
}
