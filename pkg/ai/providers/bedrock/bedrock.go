// Package bedrock implements ai.Provider for Amazon Bedrock's ConverseStream
// API.
//
// Credentials come from the AWS SDK v2 default chain: environment variables,
// a named profile, or an instance/task role.
//
//	provider: bedrock
//	model:    anthropic.claude-3-5-sonnet-20240620-v1:0
//	region:   us-east-1      # optional; falls back to AWS_REGION
package bedrock

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brdoc "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// Provider is the Amazon Bedrock streaming provider. The runtime client is
// built on first use and shared by later calls.
type Provider struct {
	Region  string
	Profile string

	once      sync.Once
	client    *bedrockruntime.Client
	clientErr error
}

func New(region, profile string) *Provider {
	return &Provider{Region: region, Profile: profile}
}

func (p *Provider) Name() string { return "bedrock" }

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

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

func (p *Provider) stream(
	ctx context.Context,
	model string,
	llmCtx ai.Context,
	opts ai.StreamOptions,
	events chan<- ai.StreamEvent,
) (*ai.AssistantMessage, error) {
	p.once.Do(func() { p.client, p.clientErr = p.newClient(ctx) })
	if p.clientErr != nil {
		return nil, errors.Wrap(p.clientErr, "bedrock: build client")
	}

	resp, err := p.client.ConverseStream(ctx, buildInput(model, llmCtx, opts))
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: ConverseStream")
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  "bedrock",
		Timestamp: time.Now().UnixMilli(),
	}

	events <- ai.StreamEvent{Type: ai.StreamEventStart, Partial: snapshotMsg(partial)}

	// blockIndex (from Bedrock) → index in partial.Content
	blockIdx := map[int32]int{}
	// blockIndex → accumulated tool-use args string
	toolArgs := map[int32]string{}

	stream := resp.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			cbIdx := aws.ToInt32(ev.Value.ContentBlockIndex)
			if s, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				tu := s.Value
				partial.Content = append(partial.Content, ai.ToolCall{
					Type:      "tool_call",
					ID:        aws.ToString(tu.ToolUseId),
					Name:      aws.ToString(tu.Name),
					Arguments: map[string]any{},
				})
				blockIdx[cbIdx] = len(partial.Content) - 1
				events <- ai.StreamEvent{
					Type:    ai.StreamEventToolCallStart,
					Partial: snapshotMsg(partial),
					Delta:   aws.ToString(tu.Name),
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			cbIdx := aws.ToInt32(ev.Value.ContentBlockIndex)
			contentIdx, ok := blockIdx[cbIdx]
			if !ok {
				// Text blocks may arrive without a start event.
				if _, isText := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); !isText {
					continue
				}
				partial.Content = append(partial.Content, ai.TextContent{Type: "text"})
				contentIdx = len(partial.Content) - 1
				blockIdx[cbIdx] = contentIdx
			}
			switch d := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				tb := partial.Content[contentIdx].(ai.TextContent)
				tb.Text += d.Value
				partial.Content[contentIdx] = tb
				events <- ai.StreamEvent{Type: ai.StreamEventTextDelta, Partial: snapshotMsg(partial), Delta: d.Value}

			case *types.ContentBlockDeltaMemberToolUse:
				toolArgs[cbIdx] += aws.ToString(d.Value.Input)
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallDelta, Partial: snapshotMsg(partial), Delta: aws.ToString(d.Value.Input)}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			cbIdx := aws.ToInt32(ev.Value.ContentBlockIndex)
			contentIdx, ok := blockIdx[cbIdx]
			if !ok {
				continue
			}
			if c, isCall := partial.Content[contentIdx].(ai.ToolCall); isCall {
				if argsStr := toolArgs[cbIdx]; argsStr != "" {
					args := map[string]any{}
					if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
						return nil, errors.Wrapf(err, "bedrock: arguments of %s", c.Name)
					}
					c.Arguments = args
					partial.Content[contentIdx] = c
				}
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallEnd, Partial: snapshotMsg(partial)}
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			partial.StopReason = mapStopReason(ev.Value.StopReason)
			if partial.StopReason == ai.StopReasonError {
				partial.ErrorMessage = "bedrock: response blocked: " + string(ev.Value.StopReason)
			}

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				u := ev.Value.Usage
				partial.Usage.Input = int(aws.ToInt32(u.InputTokens))
				partial.Usage.Output = int(aws.ToInt32(u.OutputTokens))
				partial.Usage.TotalTokens = int(aws.ToInt32(u.InputTokens)) + int(aws.ToInt32(u.OutputTokens))
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, errors.Wrap(err, "bedrock: stream")
	}

	if partial.StopReason == "" {
		partial.StopReason = ai.StopReasonStop
	}
	if len(partial.ToolCalls()) > 0 {
		partial.StopReason = ai.StopReasonTool
	}

	events <- ai.StreamEvent{Type: ai.StreamEventDone, Partial: snapshotMsg(partial)}
	return partial, nil
}

// ---------------------------------------------------------------------------
// Client + input building
// ---------------------------------------------------------------------------

func (p *Provider) newClient(ctx context.Context) (*bedrockruntime.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if p.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(p.Region))
	}
	if p.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(p.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func buildInput(model string, llmCtx ai.Context, opts ai.StreamOptions) *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: convertMessages(llmCtx.Messages),
	}

	if llmCtx.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: llmCtx.SystemPrompt},
		}
	}

	ic := &types.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		ic.MaxTokens = aws.Int32(int32(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		ic.Temperature = aws.Float32(float32(*opts.Temperature))
	}
	input.InferenceConfig = ic

	if len(llmCtx.Tools) > 0 {
		toolList := make([]types.Tool, 0, len(llmCtx.Tools))
		for _, t := range llmCtx.Tools {
			var schema map[string]any
			_ = json.Unmarshal(t.Parameters, &schema)
			toolList = append(toolList, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(t.Name),
					Description: aws.String(t.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{Value: lazyDoc(schema)},
				},
			})
		}
		input.ToolConfig = &types.ToolConfiguration{
			Tools:      toolList,
			ToolChoice: &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}},
		}
	}
	return input
}

// ---------------------------------------------------------------------------
// Message conversion
// ---------------------------------------------------------------------------

func convertMessages(msgs []ai.Message) []types.Message {
	var out []types.Message
	for _, m := range msgs {
		switch msg := deref(m).(type) {
		case ai.UserMessage:
			text := ai.JoinText(msg.Content)
			if text == "" {
				continue
			}
			out = append(out, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			})

		case ai.AssistantMessage:
			var blocks []types.ContentBlock
			for _, c := range msg.Content {
				switch blk := c.(type) {
				case ai.TextContent:
					if strings.TrimSpace(blk.Text) != "" {
						blocks = append(blocks, &types.ContentBlockMemberText{Value: blk.Text})
					}
				case ai.ToolCall:
					args := blk.Arguments
					if args == nil {
						args = map[string]any{}
					}
					blocks = append(blocks, &types.ContentBlockMemberToolUse{
						Value: types.ToolUseBlock{
							ToolUseId: aws.String(blk.ID),
							Name:      aws.String(blk.Name),
							Input:     lazyDoc(args),
						},
					})
				}
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})

		case ai.ToolResultMessage:
			status := types.ToolResultStatusSuccess
			if msg.IsError {
				status = types.ToolResultStatusError
			}
			block := &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Status:    status,
					Content:   []types.ToolResultContentBlock{resultContent(ai.JoinText(msg.Content))},
				},
			}
			// All results of one turn go into the same user message.
			if n := len(out); n > 0 && out[n-1].Role == types.ConversationRoleUser && isToolResults(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{block},
			})
		}
	}
	return out
}

// resultContent sends JSON object results as structured documents.
func resultContent(text string) types.ToolResultContentBlock {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return &types.ToolResultContentBlockMemberJson{Value: lazyDoc(obj)}
	}
	return &types.ToolResultContentBlockMemberText{Value: text}
}

func isToolResults(m types.Message) bool {
	for _, c := range m.Content {
		if _, ok := c.(*types.ContentBlockMemberToolResult); !ok {
			return false
		}
	}
	return len(m.Content) > 0
}

func deref(m ai.Message) ai.Message {
	switch p := m.(type) {
	case *ai.UserMessage:
		return *p
	case *ai.AssistantMessage:
		return *p
	case *ai.ToolResultMessage:
		return *p
	}
	return m
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func snapshotMsg(msg *ai.AssistantMessage) *ai.AssistantMessage {
	cp := *msg
	cp.Content = make([]ai.ContentBlock, len(msg.Content))
	copy(cp.Content, msg.Content)
	return &cp
}

func mapStopReason(r types.StopReason) ai.StopReason {
	switch r {
	case types.StopReasonEndTurn:
		return ai.StopReasonStop
	case types.StopReasonMaxTokens:
		return ai.StopReasonLength
	case types.StopReasonToolUse:
		return ai.StopReasonTool
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return ai.StopReasonError
	default:
		return ai.StopReasonStop
	}
}

// lazyDoc wraps a map[string]any as a Bedrock document.Interface.
func lazyDoc(m map[string]any) brdoc.Interface {
	return brdoc.NewLazyDocument(m)
}
