package completion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransportError means the request did not produce a response: the connection
// failed, the call was cancelled, or it timed out.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Raw returns the text kept in the error log
func (e *TransportError) Raw() string {
	return e.Err.Error()
}

// APIError is a well-formed error payload returned by the API
type APIError struct {
	Message    string
	Type       string
	Param      string
	Code       string
	StatusCode int
	// Body is the response body as received
	Body string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion API error: %s", e.Message)
}

// Raw returns the text kept in the error log
func (e *APIError) Raw() string {
	if e.Body != "" {
		return e.Body
	}
	return e.Error()
}

// ParseError means the response matched neither the success nor the error shape
type ParseError struct {
	Err        error
	StatusCode int
	// Body is the response body as received
	Body string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected completion response (status %d): %v", e.StatusCode, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Raw returns the text kept in the error log, including the original body
func (e *ParseError) Raw() string {
	return fmt.Sprintf("%v\n%s", e.Err, e.Body)
}

type errorEnvelope struct {
	Error *struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Param   *string         `json:"param"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// parseErrorEnvelope decodes {"error": {...}} payloads. It returns nil when
// body is not one.
func parseErrorEnvelope(body []byte, status int) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil || env.Error.Message == "" {
		return nil
	}

	apiErr := &APIError{
		Message:    env.Error.Message,
		Type:       env.Error.Type,
		Code:       rawCode(env.Error.Code),
		StatusCode: status,
		Body:       string(body),
	}
	if env.Error.Param != nil {
		apiErr.Param = *env.Error.Param
	}
	return apiErr
}

// rawCode renders a code that may be a JSON string, a number or null
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// codeString renders the untyped code field of an API error
func codeString(code any) string {
	switch c := code.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
