package server

import (
	"strconv"
	"strings"
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func boolParam(value string, def bool) (bool, error) {
	parsed, err := parseOptionalBool(value)
	if err != nil {
		return false, ErrInvalidRequest
	}
	if parsed == nil {
		return def, nil
	}
	return *parsed, nil
}
