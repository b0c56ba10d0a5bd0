package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	"github.com/smallbiznis/leadbridge/internal/observability/logger"
	"go.uber.org/zap"
)

type locationResponse struct {
	Success bool               `json:"success"`
	Data    geolocation.Fields `json:"data"`
}

// GetLocation returns the caller's resolved location. Failures yield empty
// fields, never an error.
func (s *Server) GetLocation(c *gin.Context) {
	ctx := c.Request.Context()
	loc, err := s.geo.Resolve(ctx, clientIP(c))
	if err != nil {
		logger.FromContext(ctx).Debug("caller location unavailable", zap.Error(err))
	}
	c.JSON(http.StatusOK, locationResponse{
		Success: err == nil && loc.OK(),
		Data:    geolocation.FormatLocationData(loc),
	})
}

func (s *Server) TestGeolocation(c *gin.Context) {
	c.JSON(http.StatusOK, s.geo.TestConnectivity(c.Request.Context()))
}

func (s *Server) ClearGeolocationCache(c *gin.Context) {
	ip := strings.TrimSpace(c.Param("ip"))
	if ip == "" {
		AbortWithError(c, newValidationError("ip", "required", "ip is required"))
		return
	}
	if err := s.geo.ClearCache(c.Request.Context(), ip); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": 1})
}

func (s *Server) ClearAllGeolocationCache(c *gin.Context) {
	n, err := s.geo.ClearAllCache(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}
