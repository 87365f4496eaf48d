package whatsapp

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// APIError is a non-2xx response from the provider's Graph API.
type APIError struct {
	Status    int    // HTTP status
	Code      int    // provider error code, e.g. 131047
	Subcode   int    // provider error_subcode
	Type      string // e.g. OAuthException
	Message   string
	Details   string // error_data.details
	FBTraceID string
	Body      string // raw response body, truncated
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("whatsapp API error (%d): code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp API error (%d): %s", e.Status, e.Body)
}

// errorEnvelope mirrors the provider's error response body.
type errorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
		ErrorData    struct {
			Details string `json:"details"`
		} `json:"error_data"`
	} `json:"error"`
}

const maxErrorBody = 2048

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}
	if len(apiErr.Body) > maxErrorBody {
		apiErr.Body = apiErr.Body[:maxErrorBody]
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Subcode = env.Error.ErrorSubcode
		apiErr.Type = env.Error.Type
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.ErrorData.Details
		apiErr.FBTraceID = env.Error.FBTraceID
	}
	return apiErr
}

// IsWindowExpired reports whether err is a provider rejection caused by the
// customer-service window being closed. codes lists the provider error codes
// that mean this; an empty list falls back to 131047.
func IsWindowExpired(err error, codes []int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if len(codes) == 0 {
		codes = []int{131047}
	}
	return slices.Contains(codes, apiErr.Code)
}

// Details returns the provider error details carried by err, or nil when err
// did not come from the provider API.
func Details(err error) map[string]any {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	d := map[string]any{
		"status": apiErr.Status,
		"code":   apiErr.Code,
	}
	if apiErr.Subcode != 0 {
		d["subcode"] = apiErr.Subcode
	}
	if apiErr.Message != "" {
		d["message"] = apiErr.Message
	}
	if apiErr.Details != "" {
		d["details"] = apiErr.Details
	}
	if apiErr.FBTraceID != "" {
		d["fbtraceId"] = apiErr.FBTraceID
	}
	return d
}
