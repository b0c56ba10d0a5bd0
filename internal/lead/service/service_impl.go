package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/fieldmap"
	"github.com/smallbiznis/leadbridge/internal/lead/domain"
	"github.com/smallbiznis/leadbridge/internal/observability/metrics"
	"github.com/smallbiznis/leadbridge/internal/observability/tracing"
	rotationdomain "github.com/smallbiznis/leadbridge/internal/rotation/domain"
	settingsdomain "github.com/smallbiznis/leadbridge/internal/settings/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FormSource serves the current form configuration snapshot.
type FormSource interface {
	Get() config.FormsConfig
}

// LeadCreator posts a lead to the CRM.
type LeadCreator interface {
	CreateLead(ctx context.Context, apiKey, campaignID string, lead domain.LeadRecord) crm.Result
}

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Forms    FormSource
	Settings settingsdomain.Service
	Rotation rotationdomain.Service
	CRM      LeadCreator
	Builder  *Builder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	log      *zap.Logger
	forms    FormSource
	settings settingsdomain.Service
	rotation rotationdomain.Service
	crm      LeadCreator
	builder  *Builder
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:      p.Config,
		log:      p.Log.Named("lead.service"),
		forms:    p.Forms,
		settings: p.Settings,
		rotation: p.Rotation,
		crm:      p.CRM,
		builder:  p.Builder,
		metrics:  p.Metrics,
	}
}

// Submit runs one form submission through mapping, rotation and the CRM.
// Dropped and failed submissions are reported on the result, not as errors.
func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	pageID := strings.TrimSpace(req.PageID)
	widgetID := strings.TrimSpace(req.WidgetID)
	if pageID == "" || widgetID == "" {
		return nil, domain.ErrInvalidFormInput
	}
	formKey := config.FormKey(pageID, widgetID)

	ctx, span := otel.Tracer("leadbridge/lead").Start(ctx, "lead.Submit")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("form_key", formKey))...)

	form, ok := s.forms.Get().Lookup(formKey)
	if !ok {
		return nil, domain.ErrFormNotFound
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		s.log.Warn("load settings failed, using defaults", zap.Error(err))
	}
	log := s.log.With(zap.String("form_key", formKey))
	result := &domain.SubmitResult{FormKey: formKey}

	campaigns := form.Campaigns
	if len(campaigns) == 0 && strings.TrimSpace(settings.DefaultCampaignID) != "" {
		campaigns = []string{strings.TrimSpace(settings.DefaultCampaignID)}
	}
	if len(campaigns) == 0 {
		return s.drop(ctx, log, result, domain.DropReasonNoCampaign), nil
	}

	mapping := fieldmap.Validate(fieldmap.Config{
		Mapping:            form.Mapping,
		DefaultCountryCode: s.builder.countryCode(form),
	})
	if !mapping.Valid {
		result.Errors = mapping.Errors
		return s.drop(ctx, log, result, domain.DropReasonInvalidMapping), nil
	}

	lead := s.builder.Build(ctx, form, req.Fields, req.Context)
	result.Lead = &lead

	apiKey, err := s.settings.GetAPIKey(ctx)
	if err != nil {
		log.Warn("load api key failed", zap.Error(err))
	}
	if apiKey == "" {
		return s.drop(ctx, log, result, domain.DropReasonMissingAPIKey), nil
	}

	campaignID, _, err := s.rotation.SelectNext(ctx, campaigns, formKey)
	if err != nil {
		campaignID = firstCampaign(campaigns)
		log.Warn("campaign rotation failed, using first campaign",
			zap.String("campaign_id", campaignID),
			zap.Error(err),
		)
	}
	result.CampaignID = campaignID
	span.SetAttributes(attribute.String("campaign_id", campaignID))

	res := s.crm.CreateLead(ctx, apiKey, campaignID, lead)
	result.Message = res.Message
	result.Code = res.Code
	result.ValidationErrors = res.ValidationErrors

	if !res.Success {
		result.Status = domain.StatusFailed
		s.metrics.RecordLeadSubmitted(ctx, string(result.Status))
		span.SetStatus(codes.Error, res.Code)
		if res.Err != nil {
			span.RecordError(tracing.SafeError(res.Err))
		}
		log.Error("lead creation failed",
			zap.String("campaign_id", campaignID),
			zap.String("code", res.Code),
			zap.Int("status_code", res.StatusCode),
			zap.String("message", res.Message),
			zap.Strings("invalid_fields", res.ValidationErrors.Fields()),
			zap.Error(res.Err),
		)
		return result, nil
	}

	result.Status = domain.StatusCreated
	s.metrics.RecordLeadSubmitted(ctx, string(result.Status))
	if settings.EnableLogging {
		log.Info("lead created",
			zap.String("campaign_id", campaignID),
			zap.String("lead_id", crm.LeadID(res)),
		)
	}
	return result, nil
}

func (s *Service) drop(ctx context.Context, log *zap.Logger, result *domain.SubmitResult, reason string) *domain.SubmitResult {
	result.Status = domain.StatusDropped
	result.Reason = reason
	s.metrics.RecordLeadDropped(ctx, reason)
	log.Warn("submission dropped",
		zap.String("reason", reason),
		zap.Strings("errors", result.Errors),
	)
	return result
}

func firstCampaign(ids []string) string {
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

// IsClientError reports whether err came from bad submission input.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidFormInput) || errors.Is(err, domain.ErrFormNotFound)
}
