package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/leadbridge/internal/config"
	leaddomain "github.com/smallbiznis/leadbridge/internal/lead/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "abcdefghijklmnop_1234"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{CRM: config.CRMConfig{
		BaseURL:    srv.URL,
		APIVersion: "v1",
		Timeout:    2 * time.Second,
		UserAgent:  "leadbridge-test",
	}}
	return New(cfg, zap.NewNop()), &hits
}

func TestTestConnectionSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/validate", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "leadbridge-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"success":true,"data":{"company":"Acme"}}`))
	})

	res := c.TestConnection(context.Background(), testKey)
	assert.True(t, res.Success)
	assert.Equal(t, "Connection successful", res.Message)
	assert.JSONEq(t, `{"company":"Acme"}`, string(res.Data))
}

func TestTestConnectionAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":{"message":"Token revoked","code":"revoked"}}`))
	})

	res := c.TestConnection(context.Background(), testKey)
	assert.False(t, res.Success)
	assert.Equal(t, CodeAPIError, res.Code)
	assert.Equal(t, "Token revoked", res.Message)

	var apiErr *APIError
	require.True(t, errors.As(res.Err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.JSONEq(t, `{"message":"Token revoked","code":"revoked"}`, string(apiErr.Detail))
}

func TestTestConnectionGenericFailureMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	res := c.TestConnection(context.Background(), testKey)
	assert.False(t, res.Success)
	assert.Equal(t, "Authentication failed", res.Message)
}

func TestTransportErrorIsDistinct(t *testing.T) {
	cfg := config.Config{CRM: config.CRMConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}}
	c := New(cfg, zap.NewNop())

	res := c.TestConnection(context.Background(), testKey)
	assert.False(t, res.Success)
	assert.Equal(t, CodeTransportError, res.Code)

	var te *TransportError
	assert.True(t, errors.As(res.Err, &te))
	var apiErr *APIError
	assert.False(t, errors.As(res.Err, &apiErr))
}

func TestNotConfigured(t *testing.T) {
	c := New(config.Config{}, zap.NewNop())
	res := c.TestConnection(context.Background(), testKey)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotConfigured, res.Code)
	assert.ErrorIs(t, res.Err, ErrNotConfigured)
}

func TestGetCampaignsDefaultsAndOverrides(t *testing.T) {
	var lastQuery atomic.Value
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		lastQuery.Store(r.URL.Query())
		w.Write([]byte(`{"success":true,"data":{"campaigns":[{"id":7,"name":"Spring"},{"id":"abc","name":"Fall"}]}}`))
	})

	res, page := c.GetCampaigns(context.Background(), testKey, CampaignParams{})
	require.True(t, res.Success)
	require.NotNil(t, page)
	require.Len(t, page.Campaigns, 2)
	assert.Equal(t, ID("7"), page.Campaigns[0].ID)
	assert.Equal(t, ID("abc"), page.Campaigns[1].ID)

	q := lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"1"}, q["page"])
	assert.Equal(t, []string{"10"}, q["limit"])
	assert.Equal(t, []string{"active"}, q["status"])
	assert.Equal(t, []string{"wordpress"}, q["capture_source"])

	_, _ = c.GetCampaigns(context.Background(), testKey, CampaignParams{Page: 3, Status: "paused"})
	q = lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"3"}, q["page"])
	assert.Equal(t, []string{"paused"}, q["status"])
	assert.Equal(t, []string{"10"}, q["limit"])
}

func TestCreateLeadRejectsLocally(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})

	res := c.CreateLead(context.Background(), testKey, "7", leaddomain.LeadRecord{Email: "jane@example.com"})
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidLead, res.Code)
	assert.True(t, res.ValidationErrors.Has("name"))
	assert.True(t, res.ValidationErrors.Has("phone_number"))
	assert.Equal(t, int32(0), hits.Load())
}

func TestCreateLeadAccepts200And201(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/campaigns/camp%2F1/leads", r.URL.EscapedPath())

			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			assert.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "Jane", body["name"])
			assert.Equal(t, "google", body["utm_source"])
			_, hasSurname := body["surname"]
			assert.False(t, hasSurname)

			w.WriteHeader(status)
			w.Write([]byte(`{"success":true,"data":{"id":991}}`))
		})

		res := c.CreateLead(context.Background(), testKey, "camp/1", leaddomain.LeadRecord{
			Name:             "Jane",
			PhoneCountryCode: "55",
			PhoneNumber:      "81999990000",
			UTMSource:        "google",
		})
		require.True(t, res.Success, "status %d", status)
		assert.Equal(t, "991", LeadID(res))
	}
}

func TestCreateLeadSurfacesAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"error":{"message":"Phone already registered","fields":{"phone_number":["duplicate"]}}}`))
	})

	res := c.CreateLead(context.Background(), testKey, "7", leaddomain.LeadRecord{Name: "Jane", PhoneNumber: "1"})
	assert.False(t, res.Success)
	assert.Equal(t, CodeAPIError, res.Code)
	assert.Equal(t, "Phone already registered", res.Message)
	assert.JSONEq(t, `{"message":"Phone already registered","fields":{"phone_number":["duplicate"]}}`, string(res.Data))
}

func TestHealthCheckIsUnauthenticated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"ok","message":"healthy"}`))
	})

	res := c.HealthCheck(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, "healthy", res.Message)
}

func TestAPIKeyHelpers(t *testing.T) {
	assert.False(t, ValidateAPIKey("short"))
	assert.False(t, ValidateAPIKey("abcdefghijklmnop!"))
	assert.True(t, ValidateAPIKey("abcdefghijklmnop"))
	assert.True(t, ValidateAPIKey("ABC-def_0123456789"))

	assert.Equal(t, "abcdefghijklmnop", SanitizeAPIKey("  abcd efgh<ijkl>mnop "))
	assert.Equal(t, "************mnop", MaskAPIKey("abcdefghijklmnop"))
}
