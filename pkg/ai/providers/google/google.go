// Package google implements ai.Provider for the Gemini API
// (streamGenerateContent over REST with SSE framing).
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/sse"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider is the Gemini streaming provider.
type Provider struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *Provider) Name() string { return "google" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type wirePart struct {
	Text             string        `json:"text,omitempty"`
	Thought          bool          `json:"thought,omitempty"`
	FunctionCall     *wireFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFuncResp `json:"functionResponse,omitempty"`
}

type wireFuncCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type wireFuncResp struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireFuncDecl struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	ParametersJsonSchema json.RawMessage `json:"parametersJsonSchema,omitempty"`
}

type wireTool struct {
	FunctionDeclarations []wireFuncDecl `json:"functionDeclarations"`
}

type wireGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type wireRequest struct {
	SystemInstruction *wireContent  `json:"systemInstruction,omitempty"`
	Contents          []wireContent `json:"contents"`
	Tools             []wireTool    `json:"tools,omitempty"`
	GenerationConfig  wireGenConfig `json:"generationConfig"`
}

type wireChunk struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
		TotalTokenCount         int `json:"totalTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

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
	body, err := json.Marshal(buildRequest(llmCtx, opts))
	if err != nil {
		return nil, errors.Wrap(err, "google: encode request")
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if opts.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", opts.APIKey)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "google")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, errors.Errorf("google: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  "google",
		Timestamp: time.Now().UnixMilli(),
	}
	events <- ai.StreamEvent{Type: ai.StreamEventStart, Partial: snapshotMsg(partial)}

	// open is the index of the text or thinking block being extended, or -1.
	open := -1
	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "google: sse read")
		}
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return nil, errors.Errorf("google: %d %s: %s", chunk.Error.Code, chunk.Error.Status, chunk.Error.Message)
		}

		if u := chunk.UsageMetadata; u.TotalTokenCount > 0 {
			partial.Usage.Input = u.PromptTokenCount
			partial.Usage.Output = u.CandidatesTokenCount + u.ThoughtsTokenCount
			partial.Usage.CacheRead = u.CachedContentTokenCount
			partial.Usage.TotalTokens = u.TotalTokenCount
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		cand := chunk.Candidates[0]
		if cand.FinishReason != "" {
			partial.StopReason = mapStopReason(cand.FinishReason)
			if partial.StopReason == ai.StopReasonError {
				partial.ErrorMessage = "google: response blocked: " + cand.FinishReason
			}
		}

		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				open = -1
				id := part.FunctionCall.ID
				if id == "" {
					id = "adk-" + uuid.New().String()
				}
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				tc := ai.ToolCall{Type: "tool_call", ID: id, Name: part.FunctionCall.Name, Arguments: args}
				partial.Content = append(partial.Content, tc)
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallStart, Partial: snapshotMsg(partial), Delta: tc.Name}
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallDelta, Partial: snapshotMsg(partial), Delta: jsonStr(tc.Arguments)}
				events <- ai.StreamEvent{Type: ai.StreamEventToolCallEnd, Partial: snapshotMsg(partial)}

			case part.Text != "" && part.Thought:
				if open < 0 || !isThinking(partial.Content[open]) {
					partial.Content = append(partial.Content, ai.ThinkingContent{Type: "thinking"})
					open = len(partial.Content) - 1
				}
				tb := partial.Content[open].(ai.ThinkingContent)
				tb.Thinking += part.Text
				partial.Content[open] = tb
				events <- ai.StreamEvent{Type: ai.StreamEventThinkingDelta, Partial: snapshotMsg(partial), Delta: part.Text}

			case part.Text != "":
				if open < 0 || isThinking(partial.Content[open]) {
					partial.Content = append(partial.Content, ai.TextContent{Type: "text"})
					open = len(partial.Content) - 1
				}
				tb := partial.Content[open].(ai.TextContent)
				tb.Text += part.Text
				partial.Content[open] = tb
				events <- ai.StreamEvent{Type: ai.StreamEventTextDelta, Partial: snapshotMsg(partial), Delta: part.Text}
			}
		}
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

func isThinking(b ai.ContentBlock) bool {
	_, ok := b.(ai.ThinkingContent)
	return ok
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

func buildRequest(llmCtx ai.Context, opts ai.StreamOptions) wireRequest {
	req := wireRequest{
		GenerationConfig: wireGenConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	if llmCtx.SystemPrompt != "" {
		req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: llmCtx.SystemPrompt}}}
	}

	for _, m := range llmCtx.Messages {
		wc := convertMessage(m)
		if wc == nil {
			continue
		}
		// Parallel function responses go back in one user turn.
		if n := len(req.Contents); n > 0 && wc.Parts[0].FunctionResponse != nil {
			last := &req.Contents[n-1]
			if last.Role == "user" && len(last.Parts) > 0 && last.Parts[0].FunctionResponse != nil {
				last.Parts = append(last.Parts, wc.Parts...)
				continue
			}
		}
		req.Contents = append(req.Contents, *wc)
	}

	if len(llmCtx.Tools) > 0 {
		decls := make([]wireFuncDecl, 0, len(llmCtx.Tools))
		for _, t := range llmCtx.Tools {
			decls = append(decls, wireFuncDecl{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		req.Tools = []wireTool{{FunctionDeclarations: decls}}
	}
	return req
}

func convertMessage(m ai.Message) *wireContent {
	switch msg := m.(type) {
	case *ai.UserMessage:
		return convertMessage(*msg)
	case *ai.AssistantMessage:
		return convertMessage(*msg)
	case *ai.ToolResultMessage:
		return convertMessage(*msg)

	case ai.UserMessage:
		text := ai.JoinText(msg.Content)
		if text == "" {
			return nil
		}
		return &wireContent{Role: "user", Parts: []wirePart{{Text: text}}}

	case ai.AssistantMessage:
		var parts []wirePart
		for _, c := range msg.Content {
			switch blk := c.(type) {
			case ai.TextContent:
				if strings.TrimSpace(blk.Text) != "" {
					parts = append(parts, wirePart{Text: blk.Text})
				}
			case ai.ToolCall:
				parts = append(parts, wirePart{FunctionCall: &wireFuncCall{ID: blk.ID, Name: blk.Name, Args: blk.Arguments}})
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return &wireContent{Role: "model", Parts: parts}

	case ai.ToolResultMessage:
		part := wirePart{FunctionResponse: &wireFuncResp{
			ID:       msg.ToolCallID,
			Name:     msg.ToolName,
			Response: responseObject(ai.JoinText(msg.Content), msg.IsError),
		}}
		return &wireContent{Role: "user", Parts: []wirePart{part}}
	}
	return nil
}

// responseObject passes JSON object results through as structured data and
// wraps anything else.
func responseObject(text string, isError bool) map[string]any {
	if isError {
		return map[string]any{"error": text}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": text}
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

func mapStopReason(r string) ai.StopReason {
	switch r {
	case "MAX_TOKENS":
		return ai.StopReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "MALFORMED_FUNCTION_CALL":
		return ai.StopReasonError
	default:
		return ai.StopReasonStop
	}
}

func jsonStr(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
