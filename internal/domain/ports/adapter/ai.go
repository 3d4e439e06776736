package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type GenerateRequest struct {
	Model       string // empty means the provider default
	Messages    []Message
	Temperature float64
	MaxTokens   int  // 0 means provider default
	JSONOutput  bool // ask the provider for a JSON object
}

// TextGenerator is the port for LLM text generation.
//
// Transport and auth failures are returned wrapping domain.ErrProviderError.
// Empty text is a valid result; callers decide what it means.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, Usage, error)

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
}
