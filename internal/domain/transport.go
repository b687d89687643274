package domain

import (
	"context"
	"fmt"
)

// AgentTransport delivers an encoded request to an agent and returns the raw
// response body. Implementations return *StatusError for non-2xx replies.
type AgentTransport interface {
	Post(ctx context.Context, agent AgentDescriptor, body []byte) ([]byte, error)
}

// StatusError reports a non-success HTTP status from an agent endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
