package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const userIDCtxKey = "user_id"

func (h *handlerImpl) HandleAuthMiddleware(c *gin.Context) {
	const authHeader = "Authorization"
	header := c.GetHeader(authHeader)
	if header == "" {
		h.logger.Warn().Msg("authorization header required")
		abort(c, newUnauthorizedError(msgNotAuthorized))
		return
	}

	const bearerPrefix = "Bearer"
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != bearerPrefix || strings.TrimSpace(parts[1]) == "" {
		h.logger.Warn().Msg("invalid authorization header")
		abort(c, newUnauthorizedError(msgNotAuthorized))
		return
	}

	userID, err := h.auth.VerifyToken(strings.TrimSpace(parts[1]))
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("client_ip", c.ClientIP()).
			Msg("failed to verify token")
		abort(c, newUnauthorizedError(msgInvalidToken))
		return
	}

	c.Set(userIDCtxKey, userID)
	c.Next()
}

// HandleRateLimitMiddleware limits requests per client ip. A failing
// limiter lets the request through.
func (h *handlerImpl) HandleRateLimitMiddleware(c *gin.Context) {
	allowed, err := h.limiter.Allow(c, c.ClientIP())
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to check rate limit")
		c.Next()
		return
	}

	if !allowed {
		h.logger.Warn().
			Str("client_ip", c.ClientIP()).
			Str("path", c.FullPath()).
			Msg("rate limit exceeded")
		abort(c, newAPIError(http.StatusTooManyRequests, msgTooManyRequests))
		return
	}
	c.Next()
}

func (h *handlerImpl) HandleAccessLogMiddleware(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path
	c.Next()

	status := c.Writer.Status()
	level := zerolog.InfoLevel
	switch {
	case status >= http.StatusInternalServerError:
		level = zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		level = zerolog.WarnLevel
	}

	h.logger.WithLevel(level).
		Str("method", c.Request.Method).
		Str("path", path).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Str("client_ip", c.ClientIP()).
		Msg("handled request")
}

func (h *handlerImpl) HandleRecovery(c *gin.Context, recovered any) {
	h.logger.Error().
		Interface("panic", recovered).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("recovered from panic")
	abort(c, newStatusTextError(http.StatusInternalServerError))
}

func (h *handlerImpl) HandleNoRoute(c *gin.Context) {
	abort(c, newNotFoundError(msgRouteNotFound))
}

// userID returns the id set by HandleAuthMiddleware or aborts the request.
func (h *handlerImpl) userID(c *gin.Context) (string, bool) {
	value, exists := c.Get(userIDCtxKey)
	userID, ok := value.(string)
	if !exists || !ok || userID == "" {
		h.logger.Error().Msg("no user id found in context")
		abort(c, newUnauthorizedError(msgNotAuthorized))
		return "", false
	}
	return userID, true
}
