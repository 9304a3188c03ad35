// Package llm defines the Provider interface for the chat-style language model
// that turns a normalized message into a structured explanation.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini, a
// local Ollama instance, ...) behind a single blocking call so the explanation
// engine can be tested with a deterministic stand-in.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation: when ctx is cancelled the in-flight request is aborted.
package llm

import "context"

// Message represents a single message in a conversation with the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the model backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is the high-priority instruction injected before Messages.
	// Providers without a dedicated system field prepend it as a "system" message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full, raw reply of the model.
type CompletionResponse struct {
	// Content is the assistant text exactly as returned. It is not trimmed or
	// parsed; interpreting it is the caller's job.
	Content string

	// Model is the model identifier reported by the backend, if any.
	Model string

	Usage Usage
}

// Provider is the abstraction over any chat model backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// A non-nil error means the invocation itself failed (transport, auth,
	// quota, empty choice list); it never reflects the shape of Content.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
