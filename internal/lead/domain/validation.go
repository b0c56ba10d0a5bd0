package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func leadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate applies the CRM's lead rules: name and phone_number required,
// email format, length limits and additional_info shape.
func Validate(lead LeadRecord) ValidationErrors {
	lead.Name = strings.TrimSpace(lead.Name)
	lead.PhoneNumber = strings.TrimSpace(lead.PhoneNumber)
	lead.Email = strings.TrimSpace(lead.Email)

	var out ValidationErrors
	if err := leadValidator().Struct(lead); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ValidationErrors{{Field: "lead", Message: err.Error()}}
		}
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
	}

	out = append(out, validateAdditionalInfo(lead.AdditionalInfo)...)
	if len(out) == 0 {
		return nil
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "name":
		return "Name is required"
	case "phone_number":
		return "Phone number is required"
	case "email":
		return "Invalid email format"
	case "capture_source":
		return fmt.Sprintf("Capture source must be at most %d characters", MaxCaptureSource)
	case "enterprise":
		return fmt.Sprintf("Enterprise must be at most %d characters", MaxEnterprise)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validateAdditionalInfo(items []AdditionalInfo) ValidationErrors {
	var out ValidationErrors
	add := func(msg string, args ...any) {
		out = append(out, FieldError{Field: "additional_info", Message: fmt.Sprintf(msg, args...)})
	}

	if len(items) > MaxAdditionalInfo {
		add("Additional info can contain at most %d items", MaxAdditionalInfo)
	}

	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		n := i + 1
		title := strings.TrimSpace(item.Title)
		switch {
		case title == "":
			add("Additional info item %d: title is required", n)
		case utf8.RuneCountInString(item.Title) > MaxAdditionalInfoTitle:
			add("Additional info item %d: title must be at most %d characters", n, MaxAdditionalInfoTitle)
		default:
			if _, dup := seen[item.Title]; dup {
				add("Additional info item %d: duplicate title %q", n, item.Title)
			} else {
				seen[item.Title] = struct{}{}
			}
		}

		switch {
		case strings.TrimSpace(item.Value) == "":
			add("Additional info item %d: value is required", n)
		case utf8.RuneCountInString(item.Value) > MaxAdditionalInfoValue:
			add("Additional info item %d: value must be at most %d characters", n, MaxAdditionalInfoValue)
		}
	}
	return out
}
