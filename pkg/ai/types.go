// Package ai defines the provider-neutral types the shop agent exchanges with
// an LLM: messages, content blocks, tool definitions and streaming events.
package ai

import (
	"encoding/json"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Content blocks
// ---------------------------------------------------------------------------

type TextContent struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

// ThinkingContent carries model reasoning (Gemini thought parts, Bedrock
// reasoning blocks). It is never shown to shoppers.
type ThinkingContent struct {
	Type     string `json:"type"` // "thinking"
	Thinking string `json:"thinking"`
}

type ToolCall struct {
	Type      string         `json:"type"` // "tool_call"
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ContentBlock is implemented by TextContent, ThinkingContent and ToolCall.
type ContentBlock interface {
	contentBlock()
}

func (TextContent) contentBlock()     {}
func (ThinkingContent) contentBlock() {}
func (ToolCall) contentBlock()        {}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonTool    StopReason = "tool_use"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// Message is the union of UserMessage, AssistantMessage and ToolResultMessage.
type Message interface {
	GetRole() Role
}

type UserMessage struct {
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	Timestamp int64          `json:"timestamp"` // unix ms
}

func (m UserMessage) GetRole() Role { return m.Role }

// NewUserText builds a single-block user message stamped with the current time.
func NewUserText(text string) UserMessage {
	return UserMessage{
		Role:      RoleUser,
		Content:   []ContentBlock{TextContent{Type: "text", Text: text}},
		Timestamp: time.Now().UnixMilli(),
	}
}

type AssistantMessage struct {
	Role         Role           `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	Provider     string         `json:"provider"`
	Usage        Usage          `json:"usage"`
	StopReason   StopReason     `json:"stop_reason"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Timestamp    int64          `json:"timestamp"`
}

func (m AssistantMessage) GetRole() Role { return m.Role }

// Text concatenates the text blocks of the message.
func (m AssistantMessage) Text() string {
	return JoinText(m.Content)
}

// ToolCalls returns the tool call blocks in order.
func (m AssistantMessage) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, c := range m.Content {
		if tc, ok := c.(ToolCall); ok {
			out = append(out, tc)
		}
	}
	return out
}

// ToolResultMessage carries a tool's output back to the model.
type ToolResultMessage struct {
	Role       Role           `json:"role"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Content    []ContentBlock `json:"content"`
	Details    any            `json:"details,omitempty"`
	IsError    bool           `json:"is_error"`
	Timestamp  int64          `json:"timestamp"`
}

func (m ToolResultMessage) GetRole() Role { return m.Role }

// Deref returns m as a value. Providers hand back *AssistantMessage while
// histories store values.
func Deref(m Message) Message {
	switch p := m.(type) {
	case *UserMessage:
		return *p
	case *AssistantMessage:
		return *p
	case *ToolResultMessage:
		return *p
	}
	return m
}

// JoinText concatenates every TextContent block.
func JoinText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if t, ok := b.(TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

type Usage struct {
	Input       int `json:"input"`
	Output      int `json:"output"`
	CacheRead   int `json:"cache_read"`
	CacheWrite  int `json:"cache_write"`
	TotalTokens int `json:"total_tokens"`
}

// ---------------------------------------------------------------------------
// Tool definition
// ---------------------------------------------------------------------------

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema object
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

type StreamEventType string

const (
	StreamEventStart StreamEventType = "start"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"

	StreamEventTextDelta     StreamEventType = "text_delta"
	StreamEventThinkingDelta StreamEventType = "thinking_delta"

	StreamEventToolCallStart StreamEventType = "tool_call_start"
	StreamEventToolCallDelta StreamEventType = "tool_call_delta"
	StreamEventToolCallEnd   StreamEventType = "tool_call_end"
)

// StreamEvent is sent over the events channel by providers.
type StreamEvent struct {
	Type    StreamEventType
	Partial *AssistantMessage // latest partial snapshot
	Delta   string
	Error   error
}

// Context is everything a provider needs for one call.
type Context struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
}

type StreamOptions struct {
	Temperature *float64
	MaxTokens   int
	APIKey      string
}
