package utils

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/aura-storefront/internal/services"
)

const (
	MsgNetwork    = "Unable to connect to the server. Please check your internet connection."
	MsgValidation = "Please check your information and try again."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Invalid request. Please check your input and try again.",
	http.StatusUnauthorized:        "Please log in to continue.",
	http.StatusForbidden:           "You don't have permission to perform this action.",
	http.StatusNotFound:            "The requested item could not be found.",
	http.StatusRequestTimeout:      "The request timed out. Please try again.",
	http.StatusConflict:            "This action conflicts with the current state. Please refresh and try again.",
	http.StatusUnprocessableEntity: MsgValidation,
	http.StatusTooManyRequests:     "Too many requests. Please wait a moment and try again.",
	http.StatusInternalServerError: "Something went wrong on our end. Please try again later.",
	http.StatusBadGateway:          "The server is temporarily unavailable. Please try again later.",
	http.StatusServiceUnavailable:  "The service is temporarily unavailable. Please try again later.",
	http.StatusGatewayTimeout:      "The server took too long to respond. Please try again.",
}

// Statuses whose server message is shown as is when it reads well.
var passthroughStatuses = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusConflict:            true,
	http.StatusUnprocessableEntity: true,
}

var validationMarkers = []string{
	"validation failed",
	"duplicate key error",
	"cast to objectid failed",
	"e11000",
}

// FormatError turns any error into a message safe to show a shopper.
func FormatError(err error, fallback string) string {
	if err == nil {
		return fallback
	}

	var netErr *services.NetworkError
	if errors.As(err, &netErr) {
		return MsgNetwork
	}

	status := 0
	msg := err.Error()
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		msg = apiErr.Message
	}
	msg = strings.TrimSpace(msg)

	if looksLikeValidation(msg) {
		return MsgValidation
	}

	if status != 0 {
		if passthroughStatuses[status] && isReadable(msg) && msg != http.StatusText(status) {
			return msg
		}
		if fixed, ok := statusMessages[status]; ok {
			return fixed
		}
	}

	if isReadable(msg) {
		return msg
	}
	return fallback
}

func looksLikeValidation(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range validationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isReadable(msg string) bool {
	if msg == "" {
		return false
	}
	if _, err := strconv.ParseFloat(msg, 64); err == nil {
		return false
	}
	switch msg[0] {
	case '{', '[', '<':
		return false
	}
	return true
}
