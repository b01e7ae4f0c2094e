package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an upstream response with a non-success HTTP status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Message)
}

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func apiErrorFrom(resp *APIResponse) *APIError {
	var body errorBody
	msg := ""
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		msg = strings.TrimSpace(body.Message)
		if msg == "" {
			msg = strings.TrimSpace(body.Error)
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.Status)
	}
	return &APIError{Status: resp.Status, Message: msg}
}
