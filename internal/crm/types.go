package crm

import (
	"bytes"
	"encoding/json"
	"strconv"

	leaddomain "github.com/smallbiznis/leadbridge/internal/lead/domain"
)

// Result is the outcome of one CRM call.
type Result struct {
	Success          bool                        `json:"success"`
	Message          string                      `json:"message"`
	Code             string                      `json:"code,omitempty"`
	StatusCode       int                         `json:"status_code,omitempty"`
	Data             json.RawMessage             `json:"data"`
	ValidationErrors leaddomain.ValidationErrors `json:"validation_errors,omitempty"`
	Err              error                       `json:"-"`
}

// ID accepts both string and numeric identifiers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type Campaign struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

type CampaignPage struct {
	Campaigns  []Campaign      `json:"campaigns"`
	Pagination json.RawMessage `json:"pagination,omitempty"`
}

// CampaignParams filters the campaign listing. Zero values use the defaults
// page=1, limit=10, status=active, capture_source=wordpress.
type CampaignParams struct {
	Page          int
	Limit         int
	Status        string
	CaptureSource string
}

func (p CampaignParams) withDefaults() CampaignParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if p.CaptureSource == "" {
		p.CaptureSource = "wordpress"
	}
	return p
}

func (p CampaignParams) query() map[string]string {
	p = p.withDefaults()
	return map[string]string{
		"page":           strconv.Itoa(p.Page),
		"limit":          strconv.Itoa(p.Limit),
		"status":         p.Status,
		"capture_source": p.CaptureSource,
	}
}

// CreatedLead is the subset of the lead creation response callers use.
type CreatedLead struct {
	ID ID `json:"id"`
}
