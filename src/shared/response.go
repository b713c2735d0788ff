package common

import (
	"time"
)

type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewResponse stamps the response with now in UTC at second precision.
func NewResponse(status, message string, now time.Time) Response {
	return Response{
		Status:    status,
		Message:   message,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
