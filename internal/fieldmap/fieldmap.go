package fieldmap

import (
	"fmt"
	"strings"
)

const (
	FieldName             = "name"
	FieldSurname          = "surname"
	FieldPhoneCountryCode = "phone_country_code"
	FieldPhoneNumber      = "phone_number"
	FieldEmail            = "email"
)

type FieldType string

const (
	TypeString FieldType = "string"
	TypeEmail  FieldType = "email"
)

// Field describes one target attribute of the CRM lead schema.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Type     FieldType `json:"type"`
	Default  string    `json:"default,omitempty"`
}

var schema = []Field{
	{Name: FieldName, Label: "Name", Required: true, Type: TypeString},
	{Name: FieldSurname, Label: "Surname", Type: TypeString},
	{Name: FieldPhoneCountryCode, Label: "Phone Country Code", Required: true, Type: TypeString, Default: "55"},
	{Name: FieldPhoneNumber, Label: "Phone Number", Required: true, Type: TypeString},
	{Name: FieldEmail, Label: "Email", Type: TypeEmail},
}

// Schema returns the target fields in declaration order.
func Schema() []Field {
	out := make([]Field, len(schema))
	copy(out, schema)
	return out
}

func lookup(name string) (Field, bool) {
	for _, f := range schema {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Config maps target field names to source form-field ids.
type Config struct {
	Mapping            map[string]string
	DefaultCountryCode string
}

// Source returns the trimmed source id mapped to field.
func (c Config) Source(field string) string {
	if c.Mapping == nil {
		return ""
	}
	return strings.TrimSpace(c.Mapping[field])
}

type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks that every required field has a source mapping.
// phone_country_code may fall back to the configured default instead.
func Validate(cfg Config) Result {
	errs := make([]string, 0)
	for _, f := range schema {
		if !f.Required {
			continue
		}
		if cfg.Source(f.Name) != "" {
			continue
		}
		if f.Name == FieldPhoneCountryCode && strings.TrimSpace(cfg.DefaultCountryCode) != "" {
			continue
		}
		errs = append(errs, fmt.Sprintf("field mapping required: %s", f.Name))
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Labels returns human-readable labels keyed by field name.
func Labels() map[string]string {
	labels := make(map[string]string, len(schema))
	for _, f := range schema {
		labels[f.Name] = f.Label
	}
	return labels
}

func IsRequired(field string) bool {
	f, ok := lookup(field)
	return ok && f.Required
}

// Sanitize cleans value according to the field type. Unknown fields are
// treated as text.
func Sanitize(field, value string) string {
	if f, ok := lookup(field); ok && f.Type == TypeEmail {
		return SanitizeEmail(value)
	}
	return SanitizeText(value)
}
