package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxRawBodyBytes caps how much of a non-JSON error body is kept for display.
const maxRawBodyBytes = 200

// ErrEndpointNotDeployed marks an operation whose serverless function has
// not been deployed yet (its URL resolved to ""). Callers surface the
// wrapped guidance instead of issuing a request.
var ErrEndpointNotDeployed = errors.New("endpoint not deployed")

// APIError is a non-2xx response from a serverless endpoint. Message is the
// structured error field when the body was JSON, or the truncated raw body
// otherwise. Logs carries any step-by-step server logs from the error body;
// when present they are preferred over Message for operator display.
type APIError struct {
	StatusCode int
	Message    string
	Logs       []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("endpoint returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("endpoint returned %d", e.StatusCode)
}

// errorBody is the structured error shape the endpoints return.
type errorBody struct {
	Error string   `json:"error"`
	Logs  []string `json:"logs,omitempty"`
}

// NewAPIError parses an error response body: structured JSON first, raw
// text truncated for display as the fallback.
func NewAPIError(status int, body []byte) *APIError {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Error != "" || len(parsed.Logs) > 0) {
		return &APIError{StatusCode: status, Message: parsed.Error, Logs: parsed.Logs}
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxRawBodyBytes {
		raw = raw[:maxRawBodyBytes]
	}
	return &APIError{StatusCode: status, Message: raw}
}

// notDeployedErr builds the guiding error for a missing endpoint.
func notDeployedErr(name, guidance string) error {
	return fmt.Errorf("%w: %s: %s", ErrEndpointNotDeployed, name, guidance)
}
