package session

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// ai.Message and ai.ContentBlock are interfaces, so the history is written
// through flat wire types and rebuilt from the role and block "type" fields.

// rawBlock is the flat form of every ContentBlock.
type rawBlock struct {
	Type string `json:"type"`

	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func marshalBlocks(blocks []ai.ContentBlock) (json.RawMessage, error) {
	raws := make([]rawBlock, 0, len(blocks))
	for _, b := range blocks {
		switch c := b.(type) {
		case ai.TextContent:
			raws = append(raws, rawBlock{Type: "text", Text: c.Text})
		case ai.ThinkingContent:
			raws = append(raws, rawBlock{Type: "thinking", Thinking: c.Thinking})
		case ai.ToolCall:
			raws = append(raws, rawBlock{Type: "tool_call", ID: c.ID, Name: c.Name, Arguments: c.Arguments})
		}
	}
	return json.Marshal(raws)
}

func unmarshalBlocks(raw json.RawMessage) ([]ai.ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var raws []rawBlock
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, err
	}
	blocks := make([]ai.ContentBlock, 0, len(raws))
	for _, r := range raws {
		switch r.Type {
		case "text":
			blocks = append(blocks, ai.TextContent{Type: "text", Text: r.Text})
		case "thinking":
			blocks = append(blocks, ai.ThinkingContent{Type: "thinking", Thinking: r.Thinking})
		case "tool_call":
			blocks = append(blocks, ai.ToolCall{Type: "tool_call", ID: r.ID, Name: r.Name, Arguments: r.Arguments})
		}
	}
	return blocks, nil
}

type wireUserMessage struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp int64           `json:"timestamp"`
}

type wireAssistantMessage struct {
	Role         string          `json:"role"`
	Content      json.RawMessage `json:"content"`
	Model        string          `json:"model"`
	Provider     string          `json:"provider"`
	Usage        ai.Usage        `json:"usage"`
	StopReason   ai.StopReason   `json:"stop_reason"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

type wireToolResultMessage struct {
	Role       string          `json:"role"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Content    json.RawMessage `json:"content"`
	Details    json.RawMessage `json:"details,omitempty"`
	IsError    bool            `json:"is_error"`
	Timestamp  int64           `json:"timestamp"`
}

// MarshalMessage serialises any ai.Message, pointer or value, to JSON.
func MarshalMessage(m ai.Message) (json.RawMessage, error) {
	switch p := m.(type) {
	case *ai.UserMessage:
		return MarshalMessage(*p)
	case *ai.AssistantMessage:
		return MarshalMessage(*p)
	case *ai.ToolResultMessage:
		return MarshalMessage(*p)
	}

	switch msg := m.(type) {
	case ai.UserMessage:
		cb, err := marshalBlocks(msg.Content)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireUserMessage{
			Role:      string(ai.RoleUser),
			Content:   cb,
			Timestamp: msg.Timestamp,
		})

	case ai.AssistantMessage:
		cb, err := marshalBlocks(msg.Content)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireAssistantMessage{
			Role:         string(ai.RoleAssistant),
			Content:      cb,
			Model:        msg.Model,
			Provider:     msg.Provider,
			Usage:        msg.Usage,
			StopReason:   msg.StopReason,
			ErrorMessage: msg.ErrorMessage,
			Timestamp:    msg.Timestamp,
		})

	case ai.ToolResultMessage:
		cb, err := marshalBlocks(msg.Content)
		if err != nil {
			return nil, err
		}
		var details json.RawMessage
		if msg.Details != nil {
			if details, err = json.Marshal(msg.Details); err != nil {
				return nil, errors.Wrapf(err, "session: marshal details of %s", msg.ToolName)
			}
		}
		return json.Marshal(wireToolResultMessage{
			Role:       string(ai.RoleToolResult),
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
			Content:    cb,
			Details:    details,
			IsError:    msg.IsError,
			Timestamp:  msg.Timestamp,
		})

	default:
		return nil, errors.Errorf("session: unknown message type %T", m)
	}
}

// UnmarshalMessage rebuilds a message of the given role. Tool result details
// come back as generic JSON values (maps, slices, float64).
func UnmarshalMessage(role string, data json.RawMessage) (ai.Message, error) {
	switch ai.Role(role) {
	case ai.RoleUser:
		var w wireUserMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		blocks, err := unmarshalBlocks(w.Content)
		if err != nil {
			return nil, err
		}
		return ai.UserMessage{Role: ai.RoleUser, Content: blocks, Timestamp: orNow(w.Timestamp)}, nil

	case ai.RoleAssistant:
		var w wireAssistantMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		blocks, err := unmarshalBlocks(w.Content)
		if err != nil {
			return nil, err
		}
		return ai.AssistantMessage{
			Role:         ai.RoleAssistant,
			Content:      blocks,
			Model:        w.Model,
			Provider:     w.Provider,
			Usage:        w.Usage,
			StopReason:   w.StopReason,
			ErrorMessage: w.ErrorMessage,
			Timestamp:    orNow(w.Timestamp),
		}, nil

	case ai.RoleToolResult:
		var w wireToolResultMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		blocks, err := unmarshalBlocks(w.Content)
		if err != nil {
			return nil, err
		}
		var details any
		if len(w.Details) > 0 {
			if err := json.Unmarshal(w.Details, &details); err != nil {
				return nil, errors.Wrap(err, "session: tool result details")
			}
		}
		return ai.ToolResultMessage{
			Role:       ai.RoleToolResult,
			ToolCallID: w.ToolCallID,
			ToolName:   w.ToolName,
			Content:    blocks,
			Details:    details,
			IsError:    w.IsError,
			Timestamp:  orNow(w.Timestamp),
		}, nil

	default:
		return nil, errors.Errorf("session: unknown role %q", role)
	}
}

func orNow(ts int64) int64 {
	if ts == 0 {
		return time.Now().UnixMilli()
	}
	return ts
}
