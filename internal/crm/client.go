package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/leadbridge/internal/config"
	leaddomain "github.com/smallbiznis/leadbridge/internal/lead/domain"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	log        *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	crmCfg := cfg.CRM
	timeout := crmCfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	version := strings.Trim(crmCfg.APIVersion, "/")
	if version == "" {
		version = "v1"
	}

	base := strings.TrimRight(strings.TrimSpace(crmCfg.BaseURL), "/")
	if base != "" {
		base += "/api/" + version
	}

	return &Client{
		baseURL:   base,
		userAgent: crmCfg.UserAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log.Named("crm.client"),
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

type response struct {
	status int
	body   []byte
}

func (r response) success() bool {
	return gjson.GetBytes(r.body, "success").Bool()
}

func (r response) data() json.RawMessage {
	if v := gjson.GetBytes(r.body, "data"); v.Exists() {
		return json.RawMessage(v.Raw)
	}
	return nil
}

// errorMessage returns error.message, then message, then fallback.
func (r response) errorMessage(fallback string) string {
	if v := gjson.GetBytes(r.body, "error.message"); v.Exists() && v.String() != "" {
		return v.String()
	}
	if v := gjson.GetBytes(r.body, "message"); v.Type == gjson.String && v.String() != "" {
		return v.String()
	}
	return fallback
}

func (r response) errorDetail() json.RawMessage {
	if v := gjson.GetBytes(r.body, "error"); v.Exists() {
		return json.RawMessage(v.Raw)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, apiKey string) (response, error) {
	var body io.Reader
	if payload != nil && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return response{}, &TransportError{Op: method + " " + endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, &TransportError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, &TransportError{Op: "read " + endpoint, Err: err}
	}
	return response{status: resp.StatusCode, body: raw}, nil
}

func notConfigured() Result {
	return Result{
		Success: false,
		Message: "API base URL is not configured",
		Code:    CodeNotConfigured,
		Err:     ErrNotConfigured,
	}
}

func transportFailure(message string, err error) Result {
	return Result{
		Success: false,
		Message: message,
		Code:    CodeTransportError,
		Err:     err,
	}
}

func apiFailure(resp response, fallback string) Result {
	msg := resp.errorMessage(fallback)
	return Result{
		Success:    false,
		Message:    msg,
		Code:       CodeAPIError,
		StatusCode: resp.status,
		Data:       resp.errorDetail(),
		Err:        &APIError{StatusCode: resp.status, Message: msg, Detail: resp.errorDetail()},
	}
}

// TestConnection validates apiKey against GET /auth/validate.
func (c *Client) TestConnection(ctx context.Context, apiKey string) Result {
	if !c.Configured() {
		return notConfigured()
	}

	resp, err := c.do(ctx, http.MethodGet, "/auth/validate", nil, apiKey)
	if err != nil {
		c.log.Warn("connection test transport failure", zap.Error(err))
		return transportFailure(fmt.Sprintf("Connection error: %v", unwrapTransport(err)), err)
	}
	if resp.status == http.StatusOK && resp.success() {
		return Result{
			Success:    true,
			Message:    "Connection successful",
			Code:       CodeOK,
			StatusCode: resp.status,
			Data:       resp.data(),
		}
	}
	return apiFailure(resp, "Authentication failed")
}

// GetCampaigns lists campaigns. The page is nil unless the call succeeded.
func (c *Client) GetCampaigns(ctx context.Context, apiKey string, params CampaignParams) (Result, *CampaignPage) {
	if !c.Configured() {
		return notConfigured(), nil
	}

	q := url.Values{}
	for k, v := range params.query() {
		q.Set(k, v)
	}

	resp, err := c.do(ctx, http.MethodGet, "/campaigns?"+q.Encode(), nil, apiKey)
	if err != nil {
		c.log.Warn("campaign listing transport failure", zap.Error(err))
		return transportFailure(unwrapTransport(err).Error(), err), nil
	}
	if resp.status != http.StatusOK || !resp.success() {
		return apiFailure(resp, "Failed to retrieve campaigns"), nil
	}

	result := Result{
		Success:    true,
		Message:    "Campaigns retrieved successfully",
		Code:       CodeOK,
		StatusCode: resp.status,
		Data:       resp.data(),
	}
	page := &CampaignPage{Campaigns: []Campaign{}}
	if len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, page); err != nil {
			c.log.Warn("campaign listing decode failed", zap.Error(err))
			page = &CampaignPage{Campaigns: []Campaign{}}
		}
	}
	return result, page
}

// CreateLead validates lead locally, then posts it to the campaign.
func (c *Client) CreateLead(ctx context.Context, apiKey, campaignID string, lead leaddomain.LeadRecord) Result {
	if verrs := leaddomain.Validate(lead); len(verrs) > 0 {
		return Result{
			Success:          false,
			Message:          "Invalid lead data",
			Code:             CodeInvalidLead,
			ValidationErrors: verrs,
			Err:              verrs,
		}
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return Result{Success: false, Message: "Campaign is required", Code: CodeInvalidRequest}
	}
	if !c.Configured() {
		return notConfigured()
	}

	endpoint := "/campaigns/" + url.PathEscape(campaignID) + "/leads"
	resp, err := c.do(ctx, http.MethodPost, endpoint, lead, apiKey)
	if err != nil {
		c.log.Error("lead creation transport failure", zap.String("campaign_id", campaignID), zap.Error(err))
		return transportFailure(unwrapTransport(err).Error(), err)
	}
	if (resp.status == http.StatusOK || resp.status == http.StatusCreated) && resp.success() {
		return Result{
			Success:    true,
			Message:    "Lead created successfully",
			Code:       CodeOK,
			StatusCode: resp.status,
			Data:       resp.data(),
		}
	}
	return apiFailure(resp, "Failed to create lead")
}

// HealthCheck calls the unauthenticated GET /health probe.
func (c *Client) HealthCheck(ctx context.Context) Result {
	if !c.Configured() {
		return notConfigured()
	}
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return transportFailure(unwrapTransport(err).Error(), err)
	}

	msg := "Health check completed"
	if v := gjson.GetBytes(resp.body, "message"); v.Type == gjson.String && v.String() != "" {
		msg = v.String()
	}
	var data json.RawMessage
	if gjson.ValidBytes(resp.body) {
		data = json.RawMessage(resp.body)
	}
	res := Result{
		Success:    resp.status == http.StatusOK,
		Message:    msg,
		StatusCode: resp.status,
		Data:       data,
		Code:       CodeOK,
	}
	if !res.Success {
		res.Code = CodeAPIError
	}
	return res
}

func unwrapTransport(err error) error {
	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err
	}
	return err
}

// LeadID extracts data.id from a successful CreateLead result.
func LeadID(res Result) string {
	if len(res.Data) == 0 {
		return ""
	}
	var created CreatedLead
	if err := json.Unmarshal(res.Data, &created); err != nil {
		return ""
	}
	return created.ID.String()
}
