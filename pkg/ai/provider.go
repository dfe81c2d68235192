package ai

import "context"

// Provider streams one model response for a given context.
//
// Implementations must always close the events channel, including when ctx is
// cancelled, so callers can range over it safely.
type Provider interface {
	// Name returns the provider identifier: "google", "openai", "bedrock".
	Name() string

	// Stream starts a call and returns incremental events plus a function
	// that blocks until the stream ends and yields the final message.
	Stream(
		ctx context.Context,
		model string,
		llmCtx Context,
		opts StreamOptions,
	) (<-chan StreamEvent, func() (*AssistantMessage, error))
}

// ErrorMessage builds a terminal error turn for providers to return from
// their wait function.
func ErrorMessage(provider, model string, err error) *AssistantMessage {
	m := &AssistantMessage{
		Role:       RoleAssistant,
		Model:      model,
		Provider:   provider,
		StopReason: StopReasonError,
	}
	if err != nil {
		m.ErrorMessage = err.Error()
	}
	return m
}
