package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

func (h *handlerImpl) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Server is running",
	})
}

func (h *handlerImpl) HandleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c, readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		err := check.Check(ctx)
		if err != nil {
			h.logger.Error().
				Err(err).
				Str("dependency", check.Name).
				Msg("dependency not ready")
			results[check.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = "up"
	}

	c.JSON(status, gin.H{
		"ready":  status == http.StatusOK,
		"checks": results,
	})
}
