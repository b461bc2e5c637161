package llm

import (
	"context"
	"errors"

	"lumen-backend/internal/parse"
)

// Client abstracts LLM providers for report explanation.
type Client interface {
	ExplainReport(ctx context.Context, parsed parse.Parsed) (string, error)
	Provider() string
	Model() string
}

// ErrNotConfigured is returned when no provider is wired in.
var ErrNotConfigured = errors.New("LLM provider not configured")

// PlaceholderClient is used when no provider is configured. Every call
// fails, which routes all jobs through the deterministic fallback.
type PlaceholderClient struct{}

// ExplainReport returns ErrNotConfigured.
func (PlaceholderClient) ExplainReport(ctx context.Context, parsed parse.Parsed) (string, error) {
	_ = ctx
	_ = parsed
	return "", ErrNotConfigured
}

// Provider identifies the placeholder.
func (PlaceholderClient) Provider() string { return "none" }

// Model identifies the placeholder.
func (PlaceholderClient) Model() string { return "" }
