package google_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/providers/google"
)

// sseServer replies with the given data frames and records the request body.
func sseServer(t *testing.T, frames []string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:streamGenerateContent") {
			http.Error(w, "bad path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		if gotBody != nil {
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, gotBody)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, p *google.Provider, llmCtx ai.Context) (*ai.AssistantMessage, []ai.StreamEvent, error) {
	t.Helper()
	events, wait := p.Stream(context.Background(), "gemini-2.5-flash", llmCtx, ai.StreamOptions{APIKey: "test-key"})
	var seen []ai.StreamEvent
	for ev := range events {
		seen = append(seen, ev)
	}
	msg, err := wait()
	return msg, seen, err
}

func TestStream_Text(t *testing.T) {
	srv := sseServer(t, []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Alex!"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":3,"totalTokenCount":13}}`,
	}, nil)

	msg, events, err := run(t, google.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("hi")}})
	if err != nil {
		t.Fatal(err)
	}
	if got := msg.Text(); got != "Hello Alex!" {
		t.Errorf("text = %q, want %q", got, "Hello Alex!")
	}
	if msg.StopReason != ai.StopReasonStop {
		t.Errorf("stop = %q, want stop", msg.StopReason)
	}
	if msg.Usage.Input != 10 || msg.Usage.Output != 3 {
		t.Errorf("usage = %+v", msg.Usage)
	}
	if events[0].Type != ai.StreamEventStart || events[len(events)-1].Type != ai.StreamEventDone {
		t.Errorf("events should start with start and end with done, got %v", events)
	}
}

func TestStream_FunctionCall(t *testing.T) {
	srv := sseServer(t, []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"access_cart_information","args":{"customer_id":"123"}}}]},"finishReason":"STOP"}]}`,
	}, nil)

	msg, _, err := run(t, google.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("cart?")}})
	if err != nil {
		t.Fatal(err)
	}
	calls := msg.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(calls))
	}
	if calls[0].Name != "access_cart_information" || calls[0].Arguments["customer_id"] != "123" {
		t.Errorf("call = %+v", calls[0])
	}
	if !strings.HasPrefix(calls[0].ID, "adk-") {
		t.Errorf("id = %q, want generated adk- id", calls[0].ID)
	}
	if msg.StopReason != ai.StopReasonTool {
		t.Errorf("stop = %q, want tool_use", msg.StopReason)
	}
}

func TestStream_RequestShape(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{`{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`}, &body)

	temp := 0.1
	p := google.New(srv.URL)
	events, wait := p.Stream(context.Background(), "gemini-2.5-flash", ai.Context{
		SystemPrompt: "You are Project Pro.",
		Messages: []ai.Message{
			ai.NewUserText("cart?"),
			ai.AssistantMessage{Role: ai.RoleAssistant, Content: []ai.ContentBlock{
				ai.ToolCall{Type: "tool_call", ID: "c1", Name: "access_cart_information", Arguments: map[string]any{"customer_id": "123"}},
				ai.ToolCall{Type: "tool_call", ID: "c2", Name: "get_product_recommendations", Arguments: map[string]any{"plant_type": "petunias"}},
			}},
			ai.ToolResultMessage{Role: ai.RoleToolResult, ToolCallID: "c1", ToolName: "access_cart_information",
				Content: []ai.ContentBlock{ai.TextContent{Type: "text", Text: `{"subtotal":25.98}`}}},
			ai.ToolResultMessage{Role: ai.RoleToolResult, ToolCallID: "c2", ToolName: "get_product_recommendations",
				Content: []ai.ContentBlock{ai.TextContent{Type: "text", Text: "boom"}}, IsError: true},
		},
		Tools: []ai.ToolDefinition{{Name: "access_cart_information", Description: "cart", Parameters: json.RawMessage(`{"type":"object"}`)}},
	}, ai.StreamOptions{APIKey: "test-key", Temperature: &temp, MaxTokens: 512})
	for range events {
	}
	if _, err := wait(); err != nil {
		t.Fatal(err)
	}

	sys := body["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"]
	if sys != "You are Project Pro." {
		t.Errorf("system = %v", sys)
	}
	contents := body["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3 (responses merged)", len(contents))
	}
	responses := contents[2].(map[string]any)["parts"].([]any)
	if len(responses) != 2 {
		t.Fatalf("got %d function responses, want 2", len(responses))
	}
	first := responses[0].(map[string]any)["functionResponse"].(map[string]any)["response"].(map[string]any)
	if first["subtotal"] != 25.98 {
		t.Errorf("object result not passed through: %v", first)
	}
	second := responses[1].(map[string]any)["functionResponse"].(map[string]any)["response"].(map[string]any)
	if second["error"] != "boom" {
		t.Errorf("error result = %v", second)
	}
	cfg := body["generationConfig"].(map[string]any)
	if cfg["maxOutputTokens"] != float64(512) || cfg["temperature"] != 0.1 {
		t.Errorf("generationConfig = %v", cfg)
	}
	decls := body["tools"].([]any)[0].(map[string]any)["functionDeclarations"].([]any)
	if len(decls) != 1 {
		t.Errorf("got %d declarations, want 1", len(decls))
	}
}

func TestStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := run(t, google.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("hi")}})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("got %v, want HTTP 503 error", err)
	}
}

func TestStream_Blocked(t *testing.T) {
	srv := sseServer(t, []string{`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`}, nil)
	msg, _, err := run(t, google.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("hi")}})
	if err != nil {
		t.Fatal(err)
	}
	if msg.StopReason != ai.StopReasonError || !strings.Contains(msg.ErrorMessage, "SAFETY") {
		t.Errorf("got stop=%q err=%q", msg.StopReason, msg.ErrorMessage)
	}
}
