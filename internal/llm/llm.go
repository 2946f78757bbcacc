// Package llm is the chat-completion capability used for interviews,
// report extraction and weekly aggregation.
package llm

import (
	"context"
	"errors"
	"time"

	"workreport/api/internal/metrics"
)

var (
	ErrEmptyResponse = errors.New("llm returned an empty response")
	ErrNotConfigured = errors.New("llm api key is not configured")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Schema requests strict structured output. Definition is a JSON Schema
// object.
type Schema struct {
	Name       string
	Definition map[string]any
}

type Request struct {
	// Mode labels the call in metrics and logs (interview, extract, weekly).
	Mode     string
	Messages []Message
	Schema   *Schema
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type instrumented struct {
	next Client
}

// WithMetrics records request counts and latency per mode.
func WithMetrics(next Client) Client {
	return instrumented{next: next}
}

func (c instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := c.next.Complete(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMRequest(req.Mode, status, time.Since(start).Seconds())
	return out, err
}
