package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	"github.com/smallbiznis/leadbridge/internal/lead/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResolver struct {
	loc   *geolocation.Location
	err   error
	calls []string
}

func (f *fakeResolver) Resolve(ctx context.Context, ip string) (*geolocation.Location, error) {
	f.calls = append(f.calls, ip)
	return f.loc, f.err
}

func testConfig() config.Config {
	return config.Config{Lead: config.LeadConfig{DefaultCountryCode: "55", CaptureSource: "wordpress"}}
}

func baseForm() config.FormConfig {
	return config.FormConfig{
		PageID:   "42",
		WidgetID: "abc",
		Mapping: map[string]string{
			"name":         "f_name",
			"phone_number": "f_phone",
			"email":        "f_email",
		},
	}
}

func TestBuildMapsAndSanitizes(t *testing.T) {
	b := NewBuilder(testConfig(), nil, zap.NewNop())
	fields := []domain.SubmittedField{
		{ID: "f_name", Label: "Name", Value: "  Maria <b>Silva</b> "},
		{ID: "f_phone", Label: "Phone", Value: "11 99999-0000"},
		{ID: "f_email", Label: "Email", Value: " Maria@Example.COM "},
	}

	lead := b.Build(context.Background(), baseForm(), fields, domain.RequestContext{})

	assert.Equal(t, "Maria Silva", lead.Name)
	assert.Equal(t, "11 99999-0000", lead.PhoneNumber)
	assert.Equal(t, "Maria@example.com", lead.Email)
	assert.Equal(t, "55", lead.PhoneCountryCode)
	assert.Equal(t, "wordpress", lead.CaptureSource)
	assert.Empty(t, lead.AdditionalInfo)
}

func TestBuildCountryCodeChain(t *testing.T) {
	b := NewBuilder(config.Config{}, nil, zap.NewNop())

	form := baseForm()
	lead := b.Build(context.Background(), form, nil, domain.RequestContext{})
	assert.Equal(t, "55", lead.PhoneCountryCode)

	form.DefaultCountryCode = "351"
	lead = b.Build(context.Background(), form, nil, domain.RequestContext{})
	assert.Equal(t, "351", lead.PhoneCountryCode)

	form.Mapping["phone_country_code"] = "f_ddi"
	lead = b.Build(context.Background(), form, []domain.SubmittedField{{ID: "f_ddi", Value: "1"}}, domain.RequestContext{})
	assert.Equal(t, "1", lead.PhoneCountryCode)

	lead = b.Build(context.Background(), form, []domain.SubmittedField{{ID: "f_ddi", Value: " "}}, domain.RequestContext{})
	assert.Equal(t, "351", lead.PhoneCountryCode, "empty submitted value falls back")
}

func TestBuildAdditionalInfo(t *testing.T) {
	b := NewBuilder(testConfig(), nil, zap.NewNop())
	fields := []domain.SubmittedField{
		{ID: "f_name", Label: "Name", Value: "Ana"},
		{ID: "f_phone", Label: "Phone", Value: "123"},
		{ID: "f_msg", Label: "Message", Value: "Hello"},
		{ID: "f_empty", Label: "Empty", Value: ""},
		{ID: "f_dup", Label: "Message", Value: "Again"},
		{ID: "f_nolabel", Value: "x"},
		{ID: "f_long", Label: strings.Repeat("t", 60), Value: strings.Repeat("v", 300)},
	}
	reqCtx := domain.RequestContext{
		Referrer:   "https://example.com/landing?utm_source=x#form",
		CurrentURL: "https://example.com/other",
	}

	lead := b.Build(context.Background(), baseForm(), fields, reqCtx)

	require.Len(t, lead.AdditionalInfo, 4)
	assert.Equal(t, domain.AdditionalInfo{Title: "Signup URL", Value: "https://example.com/landing"}, lead.AdditionalInfo[0])
	assert.Equal(t, domain.AdditionalInfo{Title: "Message", Value: "Hello"}, lead.AdditionalInfo[1])
	assert.Equal(t, domain.AdditionalInfo{Title: "f_nolabel", Value: "x"}, lead.AdditionalInfo[2])

	long := lead.AdditionalInfo[3]
	assert.Equal(t, strings.Repeat("t", 47)+"...", long.Title)
	assert.Equal(t, strings.Repeat("v", 252)+"...", long.Value)
	assert.Empty(t, domain.Validate(lead))
}

func TestBuildAdditionalInfoCap(t *testing.T) {
	b := NewBuilder(testConfig(), nil, zap.NewNop())
	var fields []domain.SubmittedField
	for i := 0; i < 20; i++ {
		fields = append(fields, domain.SubmittedField{ID: fmt.Sprintf("extra_%d", i), Label: fmt.Sprintf("Extra %d", i), Value: "v"})
	}

	lead := b.Build(context.Background(), baseForm(), fields, domain.RequestContext{CurrentURL: "https://example.com/p"})

	require.Len(t, lead.AdditionalInfo, domain.MaxAdditionalInfo)
	assert.Equal(t, "Signup URL", lead.AdditionalInfo[0].Title)
	assert.Equal(t, "Extra 13", lead.AdditionalInfo[14].Title)
}

func TestBuildAutomaticLocation(t *testing.T) {
	resolver := &fakeResolver{loc: &geolocation.Location{
		Status:     geolocation.StatusSuccess,
		City:       "Sao Paulo",
		RegionName: "Sao Paulo",
		Country:    "Brazil",
	}}
	b := NewBuilder(testConfig(), resolver, zap.NewNop())
	form := baseForm()
	form.LocationMode = config.LocationModeAutomatic
	form.Mapping["city"] = "f_city"

	lead := b.Build(context.Background(), form, []domain.SubmittedField{{ID: "f_city", Label: "City", Value: "Typed"}}, domain.RequestContext{ClientIP: "200.1.2.3"})

	assert.Equal(t, []string{"200.1.2.3"}, resolver.calls)
	assert.Equal(t, "Sao Paulo", lead.City)
	assert.Equal(t, "Sao Paulo", lead.State)
	assert.Equal(t, "Brazil", lead.Country)
	assert.Empty(t, lead.AdditionalInfo, "mapped city field stays consumed")
}

func TestBuildAutomaticLocationFailureLeavesEmpty(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("timeout")}
	b := NewBuilder(testConfig(), resolver, zap.NewNop())
	form := baseForm()
	form.LocationMode = config.LocationModeAutomatic

	lead := b.Build(context.Background(), form, nil, domain.RequestContext{ClientIP: "200.1.2.3"})

	assert.Empty(t, lead.City)
	assert.Empty(t, lead.State)
	assert.Empty(t, lead.Country)
}

func TestBuildManualLocationAndOptionalFields(t *testing.T) {
	resolver := &fakeResolver{}
	b := NewBuilder(testConfig(), resolver, zap.NewNop())
	form := baseForm()
	form.Mapping["city"] = "f_city"
	form.Mapping["state"] = "f_state"
	form.Mapping["enterprise"] = "f_company"
	form.CaptureSource = "landing-page"

	fields := []domain.SubmittedField{
		{ID: "f_city", Value: "Recife"},
		{ID: "f_state", Value: "PE"},
		{ID: "f_company", Value: "ACME"},
	}
	lead := b.Build(context.Background(), form, fields, domain.RequestContext{ClientIP: "200.1.2.3"})

	assert.Empty(t, resolver.calls)
	assert.Equal(t, "Recife", lead.City)
	assert.Equal(t, "PE", lead.State)
	assert.Empty(t, lead.Country)
	assert.Equal(t, "ACME", lead.Enterprise)
	assert.Equal(t, "landing-page", lead.CaptureSource)
}

func TestBuildAttribution(t *testing.T) {
	b := NewBuilder(testConfig(), nil, zap.NewNop())
	lead := b.Build(context.Background(), baseForm(), nil, domain.RequestContext{
		Attribution: map[string]string{"utm_source": "google", "utm_campaign": "spring", "other": "x"},
	})

	assert.Equal(t, "google", lead.UTMSource)
	assert.Equal(t, "spring", lead.UTMCampaign)
	assert.Empty(t, lead.UTMMedium)
}
