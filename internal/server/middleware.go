package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"go.uber.org/zap"
)

const HeaderOperator = "X-Operator"

// OperatorContext puts the calling operator on the request context so it ends
// up in logs and notification metadata.
func OperatorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if operator := strings.TrimSpace(c.GetHeader(HeaderOperator)); operator != "" {
			c.Request = c.Request.WithContext(obscontext.WithOperator(c.Request.Context(), operator))
		}
		c.Next()
	}
}

// WriteRateLimit throttles mutating requests per operator, or per client IP when
// no operator header is sent. Reads are never limited.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() || !isWrite(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		client := obscontext.OperatorFromContext(ctx)
		if client == "" {
			client = c.ClientIP()
		}

		res, err := s.writeLimiter.Allow(ctx, client)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("write rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			logger.WithContext(ctx, s.log).Warn("write rate limit exceeded",
				zap.String("client", client),
				zap.String("route", c.FullPath()),
			)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
