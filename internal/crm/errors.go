package crm

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CodeOK             = "ok"
	CodeNotConfigured  = "not_configured"
	CodeTransportError = "transport_error"
	CodeAPIError       = "api_error"
	CodeInvalidLead    = "invalid_lead"
	CodeInvalidRequest = "invalid_request"
)

var ErrNotConfigured = errors.New("crm_base_url_not_configured")

// TransportError covers failures before a response was received: DNS, TLS,
// connection and timeouts.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("crm %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a well-formed error response from the CRM.
type APIError struct {
	StatusCode int
	Message    string
	Detail     json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api error (status %d): %s", e.StatusCode, e.Message)
}
