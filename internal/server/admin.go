package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/leadbridge/internal/connection"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/fieldmap"
	settingsdomain "github.com/smallbiznis/leadbridge/internal/settings/domain"
)

type apiKeyResponse struct {
	Configured bool   `json:"configured"`
	APIKey     string `json:"api_key"`
	Valid      bool   `json:"valid"`
}

type updateAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) GetAPIKey(c *gin.Context) {
	key, err := s.settingsSvc.GetAPIKey(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, apiKeyResponse{
		Configured: key != "",
		APIKey:     crm.MaskAPIKey(key),
		Valid:      crm.ValidateAPIKey(key),
	})
}

// UpdateAPIKey stores a new key and returns a fresh connection test for it.
func (s *Server) UpdateAPIKey(c *gin.Context) {
	var req updateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	key, err := s.settingsSvc.SaveAPIKey(ctx, req.APIKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"api_key":    crm.MaskAPIKey(key),
		"connection": s.connection.Test(ctx, key),
	})
}

func (s *Server) GetSettings(c *gin.Context) {
	settings, err := s.settingsSvc.GetSettings(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) UpdateSettings(c *gin.Context) {
	var req settingsdomain.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	settings, err := s.settingsSvc.SaveSettings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type connectionTestRequest struct {
	APIKey string `json:"api_key"`
}

// TestConnection tests the posted key, or the stored one when none is posted.
// force=true bypasses the cached result.
func (s *Server) TestConnection(c *gin.Context) {
	var req connectionTestRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	force, err := boolParam(c.Query("force"), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	key := req.APIKey
	if key == "" {
		if key, err = s.settingsSvc.GetAPIKey(ctx); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	var res connection.Result
	if force {
		res = s.connection.Retest(ctx, key)
	} else {
		res = s.connection.Test(ctx, key)
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) ConnectionStatus(c *gin.Context) {
	ctx := c.Request.Context()
	key, err := s.settingsSvc.GetAPIKey(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.connection.Status(ctx, key))
}

func (s *Server) ListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()
	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	options, err := s.campaigns.Options(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"options":   options,
	})
}

func (s *Server) CRMHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.crmHealth.HealthCheck(c.Request.Context()))
}

func (s *Server) GetRotation(c *gin.Context) {
	state, err := s.rotationSvc.Get(c.Request.Context(), c.Param("form_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) ResetRotation(c *gin.Context) {
	if err := s.rotationSvc.Reset(c.Request.Context(), c.Param("form_id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) AttributionDebug(c *gin.Context) {
	c.JSON(http.StatusOK, s.attribution.Debug(c.Request))
}

// FieldSchema lists the CRM target fields and their labels.
func (s *Server) FieldSchema(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": fieldmap.Schema()})
}
