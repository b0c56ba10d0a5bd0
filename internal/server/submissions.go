package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/leadbridge/internal/attribution"
	"github.com/smallbiznis/leadbridge/internal/config"
	leaddomain "github.com/smallbiznis/leadbridge/internal/lead/domain"
	obscontext "github.com/smallbiznis/leadbridge/internal/observability/context"
	"github.com/smallbiznis/leadbridge/internal/observability/logger"
	"go.uber.org/zap"
)

const submissionAcceptedMessage = "Thank you! Your submission has been received."

type submissionField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type submissionRequest struct {
	Fields      []submissionField `json:"fields"`
	Referrer    string            `json:"referrer"`
	CurrentURL  string            `json:"current_url"`
	Attribution map[string]string `json:"attribution"`
}

type submissionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitForm accepts a form submission. The visitor always sees the same
// response once the form is known; the CRM outcome is only logged.
func (s *Server) SubmitForm(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Fields) == 0 {
		AbortWithError(c, newValidationError("fields", "required", "fields are required"))
		return
	}

	fields := make([]leaddomain.SubmittedField, 0, len(req.Fields))
	for _, f := range req.Fields {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			continue
		}
		fields = append(fields, leaddomain.SubmittedField{
			ID:    id,
			Label: f.Label,
			Type:  f.Type,
			Value: f.Value,
		})
	}

	referrer := strings.TrimSpace(req.Referrer)
	if referrer == "" {
		referrer = c.Request.Referer()
	}

	pageID := c.Param("page_id")
	widgetID := c.Param("widget_id")
	ctx := obscontext.WithFormKey(c.Request.Context(), config.FormKey(pageID, widgetID))

	submit := leaddomain.SubmitRequest{
		PageID:   pageID,
		WidgetID: widgetID,
		Fields:   fields,
		Context: leaddomain.RequestContext{
			ClientIP:    clientIP(c),
			Referrer:    referrer,
			CurrentURL:  req.CurrentURL,
			UserAgent:   c.Request.UserAgent(),
			Locale:      c.GetHeader("Accept-Language"),
			Attribution: s.submissionAttribution(c, req.Attribution),
		},
	}

	result, err := s.leadSvc.Submit(ctx, submit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(ctx).Debug("submission processed",
		zap.String("status", string(result.Status)),
		zap.String("reason", result.Reason),
	)
	c.JSON(http.StatusAccepted, submissionResponse{
		Status:  "accepted",
		Message: submissionAcceptedMessage,
	})
}

// submissionAttribution combines stored cookies with values posted by the
// form script, using the configured merge policy.
func (s *Server) submissionAttribution(c *gin.Context, posted map[string]string) map[string]string {
	stored := attribution.FromContext(c.Request.Context())
	if stored == nil {
		stored = s.attribution.FromRequest(c.Request)
	}
	values := url.Values{}
	for k, v := range posted {
		values.Set(k, v)
	}
	captured, _ := s.attribution.Capture(values)
	return attribution.Apply(stored, captured, s.attribution.Policy())
}
