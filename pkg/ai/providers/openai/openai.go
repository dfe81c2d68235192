// Package openai implements ai.Provider on the OpenAI chat-completions API
// through the official openai-go client. Any OpenAI-compatible endpoint works
// by setting the base URL.
package openai

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// Provider is the OpenAI streaming provider.
type Provider struct {
	client openai.Client
}

// New creates a Provider. An empty baseURL uses api.openai.com. Retries are
// left to the agent loop.
func New(baseURL string, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &Provider{client: openai.NewClient(append(base, opts...)...)}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
) (<-chan ai.StreamEvent, func() (*ai.AssistantMessage, error)) {
	events := make(chan ai.StreamEvent, 64)
	var finalMsg *ai.AssistantMessage
	var finalErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(events)
		finalMsg, finalErr = p.stream(ctx, model, llmCtx, opts, events)
	}()

	return events, func() (*ai.AssistantMessage, error) {
		<-done
		return finalMsg, finalErr
	}
}

// toolCallState accumulates one streamed tool call.
type toolCallState struct {
	index int64
	id    string
	name  string
	args  string
}

func (p *Provider) stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
	events chan<- ai.StreamEvent,
) (*ai.AssistantMessage, error) {
	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, buildParams(model, llmCtx, opts), reqOpts...)
	defer stream.Close()

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  "openai",
		Timestamp: time.Now().UnixMilli(),
	}
	events <- ai.StreamEvent{Type: ai.StreamEventStart, Partial: snapshotMsg(partial)}

	calls := map[int64]*toolCallState{}
	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.TotalTokens > 0 {
			partial.Usage.Input = int(chunk.Usage.PromptTokens)
			partial.Usage.Output = int(chunk.Usage.CompletionTokens)
			partial.Usage.TotalTokens = int(chunk.Usage.TotalTokens)
			partial.Usage.CacheRead = int(chunk.Usage.PromptTokensDetails.CachedTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if text := choice.Delta.Content; text != "" {
			idx := findOrAppendText(partial)
			tb := partial.Content[idx].(ai.TextContent)
			tb.Text += text
			partial.Content[idx] = tb
			events <- ai.StreamEvent{Type: ai.StreamEventTextDelta, Partial: snapshotMsg(partial), Delta: text}
		}

		for _, tc := range choice.Delta.ToolCalls {
			st, ok := calls[tc.Index]
			if !ok {
				st = &toolCallState{index: tc.Index}
				calls[tc.Index] = st
			}
			if tc.ID != "" {
				st.id = tc.ID
			}
			if tc.Function.Name != "" {
				st.name = tc.Function.Name
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallStart, Partial: snapshotMsg(partial), Delta: tc.Function.Name}
			}
			if tc.Function.Arguments != "" {
				st.args += tc.Function.Arguments
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallDelta, Partial: snapshotMsg(partial), Delta: tc.Function.Arguments}
			}
		}

		if choice.FinishReason != "" {
			partial.StopReason = mapStopReason(choice.FinishReason)
			if partial.StopReason == ai.StopReasonError {
				partial.ErrorMessage = "openai: response blocked: " + choice.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrap(err, "openai")
	}

	ordered := make([]*toolCallState, 0, len(calls))
	for _, st := range calls {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
	for _, st := range ordered {
		args := map[string]any{}
		if st.args != "" {
			if err := json.Unmarshal([]byte(st.args), &args); err != nil {
				return nil, errors.Wrapf(err, "openai: arguments of %s", st.name)
			}
		}
		partial.Content = append(partial.Content, ai.ToolCall{
			Type:      "tool_call",
			ID:        st.id,
			Name:      st.name,
			Arguments: args,
		})
		events <- ai.StreamEvent{Type: ai.StreamEventToolCallEnd, Partial: snapshotMsg(partial)}
	}

	if partial.StopReason == "" {
		partial.StopReason = ai.StopReasonStop
	}
	if len(ordered) > 0 {
		partial.StopReason = ai.StopReasonTool
	}

	events <- ai.StreamEvent{Type: ai.StreamEventDone, Partial: snapshotMsg(partial)}
	return partial, nil
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

func buildParams(model string, llmCtx ai.Context, opts ai.StreamOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: model,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}

	if llmCtx.SystemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(llmCtx.SystemPrompt))
	}
	for _, m := range llmCtx.Messages {
		if wm, ok := convertMessage(m); ok {
			params.Messages = append(params.Messages, wm)
		}
	}

	for _, t := range llmCtx.Tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		fn := openai.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: openai.FunctionParameters(schema),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return params
}

func convertMessage(m ai.Message) (openai.ChatCompletionMessageParamUnion, bool) {
	switch msg := m.(type) {
	case *ai.UserMessage:
		return convertMessage(*msg)
	case *ai.AssistantMessage:
		return convertMessage(*msg)
	case *ai.ToolResultMessage:
		return convertMessage(*msg)

	case ai.UserMessage:
		return openai.UserMessage(ai.JoinText(msg.Content)), true

	case ai.AssistantMessage:
		var am openai.ChatCompletionAssistantMessageParam
		if text := msg.Text(); text != "" {
			am.Content.OfString = openai.String(text)
		}
		for _, tc := range msg.ToolCalls() {
			args, _ := json.Marshal(tc.Arguments)
			am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		if am.Content.OfString.Value == "" && len(am.ToolCalls) == 0 {
			return openai.ChatCompletionMessageParamUnion{}, false
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &am}, true

	case ai.ToolResultMessage:
		return openai.ToolMessage(ai.JoinText(msg.Content), msg.ToolCallID), true
	}
	return openai.ChatCompletionMessageParamUnion{}, false
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func findOrAppendText(msg *ai.AssistantMessage) int {
	for i, c := range msg.Content {
		if _, ok := c.(ai.TextContent); ok {
			return i
		}
	}
	msg.Content = append(msg.Content, ai.TextContent{Type: "text"})
	return len(msg.Content) - 1
}

func snapshotMsg(msg *ai.AssistantMessage) *ai.AssistantMessage {
	cp := *msg
	cp.Content = make([]ai.ContentBlock, len(msg.Content))
	copy(cp.Content, msg.Content)
	return &cp
}

func mapStopReason(s string) ai.StopReason {
	switch s {
	case "length":
		return ai.StopReasonLength
	case "tool_calls", "function_call":
		return ai.StopReasonTool
	case "content_filter":
		return ai.StopReasonError
	default:
		return ai.StopReasonStop
	}
}
