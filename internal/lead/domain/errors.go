package domain

import (
	"errors"
	"strings"
)

var (
	ErrFormNotFound     = errors.New("form_not_found")
	ErrMappingInvalid   = errors.New("invalid_mapping")
	ErrMissingAPIKey    = errors.New("missing_api_key")
	ErrInvalidLead      = errors.New("invalid_lead")
	ErrInvalidFormInput = errors.New("invalid_form_input")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors lists lead problems per field. A nil or empty value means
// the lead is valid.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid lead: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrInvalidLead
}

// Err returns nil when there are no errors so callers avoid typed-nil traps.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Fields returns the distinct field names in first-seen order.
func (v ValidationErrors) Fields() []string {
	seen := make(map[string]struct{}, len(v))
	out := make([]string, 0, len(v))
	for _, fe := range v {
		if _, ok := seen[fe.Field]; ok {
			continue
		}
		seen[fe.Field] = struct{}{}
		out = append(out, fe.Field)
	}
	return out
}

func (v ValidationErrors) Has(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}
