package workflow

import (
	"errors"
	"strings"
)

var (
	ErrEmptyPrompt        = errors.New("prompt is empty")
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrSubmitFailed       = errors.New("failed to start request")
	ErrSessionExpired     = errors.New("session expired")
	ErrNoResponse         = errors.New("no response received from agents")
	ErrCancelled          = errors.New("workflow cancelled")
)

// UserMessage maps a workflow error to the text shown to the user. It
// returns "" for nil.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyPrompt):
		return "Please enter a message."
	case errors.Is(err, ErrBackendUnreachable):
		return "Cannot connect to backend. Please ensure ADK server is running."
	case errors.Is(err, ErrSessionExpired):
		return "Session expired. Please try again."
	case errors.Is(err, ErrNoResponse):
		return "No response received from agents. Please try again."
	case errors.Is(err, ErrCancelled):
		return "Request cancelled."
	case errors.Is(err, ErrSubmitFailed):
		cause := strings.TrimPrefix(err.Error(), ErrSubmitFailed.Error())
		return "Failed to start request" + cause
	}
	return "Sorry, something went wrong: " + err.Error()
}
