package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound indicates the requested resource does not exist
	// (unknown room slug, deleted room). Not retried.
	ErrNotFound = errors.New("not found")

	// ErrUnverifiedEmail is a distinguished 401: the credential is valid but
	// the account's email is unverified. Never triggers a token refresh;
	// callers should route the user to the verification flow.
	ErrUnverifiedEmail = errors.New("email is not verified")
)

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps well-known status codes onto sentinel errors so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// envelope is the server's response wrapper. Auth endpoints write their
// payload unwrapped, so both shapes must be handled.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorMessage extracts a safe, human-readable message from an error
// response body without exposing the raw payload.
func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Error.Code != "" {
			return env.Error.Code
		}
	}

	// Some endpoints write bare {"error": "..."} or plain text.
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	if len(body) > 0 && len(body) <= 200 && !json.Valid(body) {
		return strings.TrimSpace(string(body))
	}
	return "request failed (response body redacted)"
}

// decodeData decodes a response body into result, unwrapping the
// {"success":true,"data":...} envelope when present.
func decodeData(body []byte, result any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		body = env.Data
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unexpected API response format (JSON decode failed): %w", err)
	}
	return nil
}
