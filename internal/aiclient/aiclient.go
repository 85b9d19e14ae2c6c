// Package aiclient specifies the interface boundary to the excluded
// AI-backend HTTP clients (chat-completion transports for remote or local
// LLM services, spec §1). No transport is implemented here; a concrete
// adapter (REST call to a hosted model, a local llama.cpp server, ...)
// would satisfy ChatClient and be wired in by internal/restapi.
package aiclient

import (
	"context"
	"errors"
)

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float32
	Stop        []string
}

// ChatClient is the narrow surface the core needs from an AI backend: a
// single prompt-in, text-out call. Streaming token-by-token responses are
// the excluded transport's concern, not this interface's — callers that
// want incremental output read it off the returned string in one shot, the
// same way internal/diffusion treats its own excluded inference engine.
type ChatClient interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// ErrNotConfigured is returned by NoOpChatClient, the default ChatClient
// when no transport adapter has been wired in.
var ErrNotConfigured = errors.New("aiclient: no chat backend configured")

// NoOpChatClient is the zero-value ChatClient: it always fails with
// ErrNotConfigured rather than silently fabricating text. Every caller of
// Complete must already treat an error as "generation unavailable", so this
// is a safe default until a real transport adapter is wired in.
type NoOpChatClient struct{}

// Complete always returns ErrNotConfigured.
func (NoOpChatClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return "", ErrNotConfigured
}
