// Package llm provides text generation clients for LLM providers.
//
// The package exposes a TextGenerator interface with OpenAI and Anthropic
// implementations. Each call performs exactly one API attempt; callers that
// need retries wrap the generator (see the gateway package).
package llm

import (
	"context"
)

// GenerateRequest describes a single text generation call.
type GenerateRequest struct {
	// System is the system prompt establishing the model's role.
	System string
	// Prompt is the user prompt with the task content.
	Prompt string
	// MaxTokens caps the response length. Zero means the provider default.
	MaxTokens int
	// JSONOutput requests a JSON object response where the provider
	// supports enforcing it.
	JSONOutput bool
}

// GenerateResult holds the generated text and call metadata.
type GenerateResult struct {
	// Text is the generated completion text.
	Text string
	// Model is the model that produced the completion.
	Model string
	// InputTokens is the number of prompt tokens consumed.
	InputTokens int
	// OutputTokens is the number of completion tokens produced.
	OutputTokens int
}

// TextGenerator generates text from a prompt using an LLM provider.
type TextGenerator interface {
	// Generate performs a single generation call. It does not retry;
	// transient failures are returned as *APIError for the caller to classify.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Provider returns the provider name (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}
