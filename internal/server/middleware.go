package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	obscontext "github.com/smallbiznis/leadbridge/internal/observability/context"
	"github.com/smallbiznis/leadbridge/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderAdminToken = "X-Admin-Token"
	contextClientIP  = "client_ip"
	fallbackLimitKey = "unknown"
)

// ClientIP resolves the caller address once per request.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := geolocation.ClientIP(c.Request)
		c.Set(contextClientIP, ip)
		c.Request = c.Request.WithContext(obscontext.WithClientIP(c.Request.Context(), ip))
		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	if ip := c.GetString(contextClientIP); ip != "" {
		return ip
	}
	return geolocation.ClientIP(c.Request)
}

// rateLimitKey is the peer address, or the forwarded one when the peer is a
// trusted proxy. Visitor-supplied headers never pick the bucket.
func rateLimitKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return fallbackLimitKey
}

// AdminRequired checks the shared admin token. Admin routes are disabled when
// no token is configured.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.AdminToken)
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}
		token := strings.TrimSpace(c.GetHeader(HeaderAdminToken))
		if token == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// SubmissionRateLimit throttles submissions per client IP.
func (s *Server) SubmissionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.AllowIP(ctx, rateLimitKey(c))
		if err != nil {
			logger.FromContext(ctx).Warn("submission rate limit check failed", zap.Error(err))
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
