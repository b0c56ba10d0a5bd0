package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/fieldmap"
	"github.com/smallbiznis/leadbridge/internal/geolocation"
	"github.com/smallbiznis/leadbridge/internal/lead/domain"
	"go.uber.org/zap"
)

const ellipsis = "..."

// Optional targets copied like schema fields when mapped.
var optionalFields = []string{"enterprise", "position", "profession", "gender"}

var locationFields = []string{"city", "state", "country"}

// LocationResolver looks up a caller address.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) (*geolocation.Location, error)
}

// Builder assembles LeadRecords from a submission. It never calls the CRM.
type Builder struct {
	resolver           LocationResolver
	log                *zap.Logger
	defaultCountryCode string
	captureSource      string
}

func NewBuilder(cfg config.Config, resolver LocationResolver, log *zap.Logger) *Builder {
	return &Builder{
		resolver:           resolver,
		log:                log.Named("lead.builder"),
		defaultCountryCode: strings.TrimSpace(cfg.Lead.DefaultCountryCode),
		captureSource:      strings.TrimSpace(cfg.Lead.CaptureSource),
	}
}

// Build maps fields onto a LeadRecord and adds best-effort enrichment.
func (b *Builder) Build(ctx context.Context, form config.FormConfig, fields []domain.SubmittedField, reqCtx domain.RequestContext) domain.LeadRecord {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		if _, seen := values[f.ID]; !seen {
			values[f.ID] = f.Value
		}
	}
	consumed := make(map[string]struct{}, len(form.Mapping))
	for _, source := range form.Mapping {
		if source = strings.TrimSpace(source); source != "" {
			consumed[source] = struct{}{}
		}
	}

	mapped := func(target string) string {
		source := strings.TrimSpace(form.Mapping[target])
		if source == "" {
			return ""
		}
		return fieldmap.Sanitize(target, values[source])
	}

	var lead domain.LeadRecord
	lead.Name = mapped(fieldmap.FieldName)
	lead.Surname = mapped(fieldmap.FieldSurname)
	lead.PhoneNumber = mapped(fieldmap.FieldPhoneNumber)
	lead.Email = mapped(fieldmap.FieldEmail)

	lead.PhoneCountryCode = mapped(fieldmap.FieldPhoneCountryCode)
	if lead.PhoneCountryCode == "" {
		lead.PhoneCountryCode = b.countryCode(form)
	}

	optional := make(map[string]string, len(optionalFields))
	for _, target := range optionalFields {
		optional[target] = mapped(target)
	}
	lead.Enterprise = optional["enterprise"]
	lead.Position = optional["position"]
	lead.Profession = optional["profession"]
	lead.Gender = optional["gender"]

	if form.AutomaticLocation() {
		loc := b.locate(ctx, reqCtx.ClientIP)
		lead.City, lead.State, lead.Country = loc.City, loc.State, loc.Country
	} else {
		lead.City = mapped(locationFields[0])
		lead.State = mapped(locationFields[1])
		lead.Country = mapped(locationFields[2])
	}

	lead.AdditionalInfo = additionalInfo(fields, consumed, signupURL(reqCtx))

	for key, value := range reqCtx.Attribution {
		lead.SetAttribution(key, value)
	}

	lead.CaptureSource = fieldmap.SanitizeText(form.CaptureSource)
	if lead.CaptureSource == "" {
		lead.CaptureSource = b.captureSource
	}
	return lead
}

func (b *Builder) countryCode(form config.FormConfig) string {
	for _, candidate := range []string{form.DefaultCountryCode, b.defaultCountryCode} {
		if v := fieldmap.SanitizeText(candidate); v != "" {
			return v
		}
	}
	return config.DefaultCountryCode
}

func (b *Builder) locate(ctx context.Context, ip string) geolocation.Fields {
	if b.resolver == nil || strings.TrimSpace(ip) == "" {
		return geolocation.Fields{}
	}
	loc, err := b.resolver.Resolve(ctx, ip)
	if err != nil {
		b.log.Warn("location lookup failed", zap.Error(err))
		return geolocation.Fields{}
	}
	return geolocation.FormatLocationData(loc)
}

// signupURL prefers the referrer and drops query and fragment.
func signupURL(reqCtx domain.RequestContext) string {
	for _, raw := range []string{reqCtx.Referrer, reqCtx.CurrentURL} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil {
			u.RawQuery = ""
			u.ForceQuery = false
			u.Fragment = ""
			u.RawFragment = ""
			return u.String()
		}
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return raw
	}
	return ""
}

func additionalInfo(fields []domain.SubmittedField, consumed map[string]struct{}, signup string) []domain.AdditionalInfo {
	items := make([]domain.AdditionalInfo, 0, domain.MaxAdditionalInfo)
	titles := make(map[string]struct{}, domain.MaxAdditionalInfo)

	add := func(title, value string) bool {
		title = truncate(fieldmap.SanitizeText(title), domain.MaxAdditionalInfoTitle)
		value = truncate(value, domain.MaxAdditionalInfoValue)
		if title == "" || value == "" {
			return true
		}
		if _, dup := titles[title]; dup {
			return true
		}
		titles[title] = struct{}{}
		items = append(items, domain.AdditionalInfo{Title: title, Value: value})
		return len(items) < domain.MaxAdditionalInfo
	}

	if signup != "" {
		add(domain.SignupURLTitle, signup)
	}
	for _, f := range fields {
		if len(items) >= domain.MaxAdditionalInfo {
			break
		}
		if _, ok := consumed[f.ID]; ok {
			continue
		}
		title := f.Label
		if strings.TrimSpace(title) == "" {
			title = f.ID
		}
		if !add(title, fieldmap.SanitizeText(f.Value)) {
			break
		}
	}

	if len(items) == 0 {
		return nil
	}
	return items
}

// truncate keeps at most limit runes, ending in an ellipsis when cut.
func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
