package domain

import "strings"

const (
	MaxAdditionalInfo      = 15
	MaxAdditionalInfoTitle = 50
	MaxAdditionalInfoValue = 255
	MaxCaptureSource       = 100
	MaxEnterprise          = 50

	SignupURLTitle = "Signup URL"
)

// LeadRecord is the payload posted to the CRM lead endpoint. It is built per
// submission and never persisted.
type LeadRecord struct {
	Name             string           `json:"name" validate:"required"`
	Surname          string           `json:"surname,omitempty"`
	PhoneCountryCode string           `json:"phone_country_code,omitempty"`
	PhoneNumber      string           `json:"phone_number" validate:"required"`
	Email            string           `json:"email,omitempty" validate:"omitempty,email"`
	Enterprise       string           `json:"enterprise,omitempty" validate:"omitempty,max=50"`
	Position         string           `json:"position,omitempty"`
	Profession       string           `json:"profession,omitempty"`
	Gender           string           `json:"gender,omitempty"`
	City             string           `json:"city,omitempty"`
	State            string           `json:"state,omitempty"`
	Country          string           `json:"country,omitempty"`
	CaptureSource    string           `json:"capture_source,omitempty" validate:"omitempty,max=100"`
	AdditionalInfo   []AdditionalInfo `json:"additional_info,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
}

type AdditionalInfo struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// SetAttribution copies a whitelisted utm_* key onto the record and reports
// whether the key was recognised.
func (l *LeadRecord) SetAttribution(key, value string) bool {
	value = strings.TrimSpace(value)
	switch key {
	case "utm_source":
		l.UTMSource = value
	case "utm_medium":
		l.UTMMedium = value
	case "utm_campaign":
		l.UTMCampaign = value
	case "utm_content":
		l.UTMContent = value
	case "utm_term":
		l.UTMTerm = value
	default:
		return false
	}
	return true
}

// SubmittedField is one value posted by a form, in form order.
type SubmittedField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// RequestContext carries everything the builder needs from the inbound
// request.
type RequestContext struct {
	ClientIP    string
	Referrer    string
	CurrentURL  string
	UserAgent   string
	Locale      string
	Attribution map[string]string
}

type SubmitRequest struct {
	PageID   string
	WidgetID string
	Fields   []SubmittedField
	Context  RequestContext
}

type SubmitStatus string

const (
	StatusCreated SubmitStatus = "created"
	StatusFailed  SubmitStatus = "failed"
	StatusDropped SubmitStatus = "dropped"
)

const (
	DropReasonNoCampaign     = "no_campaign"
	DropReasonInvalidMapping = "invalid_mapping"
	DropReasonMissingAPIKey  = "missing_api_key"
)

// SubmitResult records what happened to a submission. It is internal and
// never shown to the visitor.
type SubmitResult struct {
	FormKey          string           `json:"form_key"`
	Status           SubmitStatus     `json:"status"`
	Reason           string           `json:"reason,omitempty"`
	CampaignID       string           `json:"campaign_id,omitempty"`
	Message          string           `json:"message,omitempty"`
	Code             string           `json:"code,omitempty"`
	Errors           []string         `json:"errors,omitempty"`
	ValidationErrors ValidationErrors `json:"validation_errors,omitempty"`
	Lead             *LeadRecord      `json:"-"`
}
