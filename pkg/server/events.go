package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// Event is one entry of a run response, in the shape chat clients parse:
// model text and function calls under role "model", tool output as
// functionResponse parts under role "user".
type Event struct {
	ID           string   `json:"id"`
	InvocationID string   `json:"invocationId"`
	Author       string   `json:"author"`
	Timestamp    float64  `json:"timestamp"`
	Content      *Content `json:"content,omitempty"`
	Actions      Actions  `json:"actions"`
	ErrorCode    string   `json:"errorCode,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part holds exactly one of its fields.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type FunctionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Response any    `json:"response"`
}

type Actions struct {
	StateDelta map[string]any `json:"stateDelta"`
}

// SessionView is the JSON form of a stored session.
type SessionView struct {
	ID             string         `json:"id"`
	AppName        string         `json:"appName"`
	UserID         string         `json:"userId"`
	State          map[string]any `json:"state"`
	Events         []Event        `json:"events"`
	LastUpdateTime float64        `json:"lastUpdateTime"`
}

func newInvocationID() string { return "e-" + uuid.New().String() }

// eventFromMessage converts one history message. ok is false for messages
// that carry nothing a client can show, such as a thinking-only turn.
func eventFromMessage(invocationID, agentName string, m ai.Message) (ev Event, ok bool) {
	ev = Event{
		ID:           uuid.New().String(),
		InvocationID: invocationID,
		Actions:      Actions{StateDelta: map[string]any{}},
	}

	switch msg := ai.Deref(m).(type) {
	case ai.UserMessage:
		text := ai.JoinText(msg.Content)
		if text == "" {
			return ev, false
		}
		ev.Author = "user"
		ev.Timestamp = seconds(msg.Timestamp)
		ev.Content = &Content{Role: "user", Parts: []Part{{Text: text}}}

	case ai.AssistantMessage:
		ev.Author = agentName
		ev.Timestamp = seconds(msg.Timestamp)
		var parts []Part
		if text := msg.Text(); text != "" {
			parts = append(parts, Part{Text: text})
		}
		for _, tc := range msg.ToolCalls() {
			args := tc.Arguments
			if args == nil {
				args = map[string]any{}
			}
			parts = append(parts, Part{FunctionCall: &FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
		}
		if msg.StopReason == ai.StopReasonError || msg.StopReason == ai.StopReasonAborted {
			ev.ErrorCode = string(msg.StopReason)
			ev.ErrorMessage = msg.ErrorMessage
		}
		if len(parts) > 0 {
			ev.Content = &Content{Role: "model", Parts: parts}
		} else if ev.ErrorCode == "" {
			return ev, false
		}

	case ai.ToolResultMessage:
		ev.Author = agentName
		ev.Timestamp = seconds(msg.Timestamp)
		ev.Content = &Content{Role: "user", Parts: []Part{{FunctionResponse: &FunctionResponse{
			ID:       msg.ToolCallID,
			Name:     msg.ToolName,
			Response: responsePayload(msg),
		}}}}

	default:
		return ev, false
	}
	return ev, true
}

// responsePayload returns the tool's structured result when it encodes as a
// JSON object, and wraps anything else as {"result": ...} or {"error": ...}.
func responsePayload(m ai.ToolResultMessage) any {
	text := ai.JoinText(m.Content)
	if m.IsError {
		return map[string]any{"error": text}
	}
	if m.Details != nil {
		if b, err := json.Marshal(m.Details); err == nil && len(b) > 0 && b[0] == '{' {
			return json.RawMessage(b)
		}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}
	return map[string]any{"result": text}
}

func eventsFromMessages(agentName string, msgs []ai.Message) []Event {
	out := make([]Event, 0, len(msgs))
	inv := newInvocationID()
	for _, m := range msgs {
		if m.GetRole() == ai.RoleUser {
			inv = newInvocationID()
		}
		if ev, ok := eventFromMessage(inv, agentName, m); ok {
			out = append(out, ev)
		}
	}
	return out
}

// seconds converts unix milliseconds to fractional unix seconds.
func seconds(ms int64) float64 {
	if ms == 0 {
		ms = time.Now().UnixMilli()
	}
	return float64(ms) / 1000
}
