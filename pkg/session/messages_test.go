package session

import (
	"testing"
	"time"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

func makeUserMsg(text string) ai.UserMessage {
	return ai.UserMessage{
		Role:      ai.RoleUser,
		Content:   []ai.ContentBlock{ai.TextContent{Type: "text", Text: text}},
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestMarshalUnmarshalUserMessage(t *testing.T) {
	data, err := MarshalMessage(makeUserMsg("hello world"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalMessage("user", data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	um, ok := got.(ai.UserMessage)
	if !ok {
		t.Fatalf("got type %T, want UserMessage", got)
	}
	if text := ai.JoinText(um.Content); text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
}

func TestMarshalAssistantPointer(t *testing.T) {
	orig := &ai.AssistantMessage{
		Role: ai.RoleAssistant,
		Content: []ai.ContentBlock{
			ai.ThinkingContent{Type: "thinking", Thinking: "look up the cart"},
			ai.ToolCall{Type: "tool_call", ID: "c1", Name: "access_cart_information", Arguments: map[string]any{"customer_id": "123"}},
		},
		Model:      "gemini-2.5-flash",
		Provider:   "google",
		StopReason: ai.StopReasonTool,
		Usage:      ai.Usage{Input: 10, Output: 20, TotalTokens: 30},
	}
	data, err := MarshalMessage(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalMessage("assistant", data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	am := got.(ai.AssistantMessage)
	if am.StopReason != ai.StopReasonTool || am.Model != "gemini-2.5-flash" {
		t.Errorf("got stop=%q model=%q", am.StopReason, am.Model)
	}
	if am.Usage.TotalTokens != 30 {
		t.Errorf("total tokens = %d, want 30", am.Usage.TotalTokens)
	}
	calls := am.ToolCalls()
	if len(calls) != 1 || calls[0].Arguments["customer_id"] != "123" {
		t.Fatalf("tool calls = %+v", calls)
	}
	if _, ok := am.Content[0].(ai.ThinkingContent); !ok {
		t.Errorf("content[0] is %T, want ThinkingContent", am.Content[0])
	}
	if am.Timestamp == 0 {
		t.Error("zero timestamp should be replaced on load")
	}
}

func TestMarshalToolResultKeepsDetails(t *testing.T) {
	orig := ai.ToolResultMessage{
		Role:       ai.RoleToolResult,
		ToolCallID: "c1",
		ToolName:   "access_cart_information",
		Content:    []ai.ContentBlock{ai.TextContent{Type: "text", Text: `{"items":[]}`}},
		Details:    map[string]any{"subtotal": 12.5, "items": []any{}},
		IsError:    true,
	}
	data, err := MarshalMessage(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalMessage("tool_result", data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tr := got.(ai.ToolResultMessage)
	if !tr.IsError || tr.ToolCallID != "c1" || tr.ToolName != "access_cart_information" {
		t.Errorf("got %+v", tr)
	}
	details, ok := tr.Details.(map[string]any)
	if !ok {
		t.Fatalf("details is %T, want map", tr.Details)
	}
	if details["subtotal"] != 12.5 {
		t.Errorf("subtotal = %v, want 12.5", details["subtotal"])
	}
}

func TestUnmarshalUnknownRole(t *testing.T) {
	if _, err := UnmarshalMessage("system", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestParseLine(t *testing.T) {
	typ, _, err := ParseLine([]byte(`{"type":"state","delta":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if typ != EntryTypeState {
		t.Errorf("type = %q, want state", typ)
	}
	if _, _, err := ParseLine([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed line")
	}
}
