package openai_test

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
	"github.com/bitop-dev/shopagent/pkg/ai/providers/openai"
)

func chatServer(t *testing.T, frames []string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "bad path", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
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
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, p *openai.Provider, llmCtx ai.Context) (*ai.AssistantMessage, error) {
	t.Helper()
	events, wait := p.Stream(context.Background(), "gpt-4o-mini", llmCtx, ai.StreamOptions{APIKey: "sk-test"})
	for range events {
	}
	return wait()
}

func TestStream_Text(t *testing.T) {
	srv := chatServer(t, []string{
		`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Your cart "}}]}`,
		`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"is empty."},"finish_reason":"stop"}]}`,
		`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":20,"completion_tokens":5,"total_tokens":25}}`,
	}, nil)

	msg, err := collect(t, openai.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("cart?")}})
	if err != nil {
		t.Fatal(err)
	}
	if got := msg.Text(); got != "Your cart is empty." {
		t.Errorf("text = %q", got)
	}
	if msg.Usage.Input != 20 || msg.Usage.Output != 5 || msg.Usage.TotalTokens != 25 {
		t.Errorf("usage = %+v", msg.Usage)
	}
	if msg.StopReason != ai.StopReasonStop {
		t.Errorf("stop = %q", msg.StopReason)
	}
}

func TestStream_ToolCallsInIndexOrder(t *testing.T) {
	srv := chatServer(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"get_available_planting_times","arguments":""}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"access_cart_information","arguments":"{\"customer_"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"id\":\"123\"}"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"{\"date\":\"2026-10-18\"}"}}]},"finish_reason":"tool_calls"}]}`,
	}, nil)

	msg, err := collect(t, openai.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("x")}})
	if err != nil {
		t.Fatal(err)
	}
	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].ID != "call_a" || calls[0].Arguments["customer_id"] != "123" {
		t.Errorf("calls[0] = %+v", calls[0])
	}
	if calls[1].Name != "get_available_planting_times" || calls[1].Arguments["date"] != "2026-10-18" {
		t.Errorf("calls[1] = %+v", calls[1])
	}
	if msg.StopReason != ai.StopReasonTool {
		t.Errorf("stop = %q, want tool_use", msg.StopReason)
	}
}

func TestStream_RequestShape(t *testing.T) {
	var body map[string]any
	srv := chatServer(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}`,
	}, &body)

	_, err := collect(t, openai.New(srv.URL), ai.Context{
		SystemPrompt: "You are Project Pro.",
		Messages: []ai.Message{
			ai.NewUserText("cart?"),
			ai.AssistantMessage{Role: ai.RoleAssistant, Content: []ai.ContentBlock{
				ai.ToolCall{Type: "tool_call", ID: "call_a", Name: "access_cart_information", Arguments: map[string]any{"customer_id": "123"}},
			}},
			ai.ToolResultMessage{Role: ai.RoleToolResult, ToolCallID: "call_a", ToolName: "access_cart_information",
				Content: []ai.ContentBlock{ai.TextContent{Type: "text", Text: `{"items":[]}`}}},
		},
		Tools: []ai.ToolDefinition{{Name: "access_cart_information", Description: "Read the cart.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"customer_id":{"type":"string"}}}`)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if body["stream"] != true {
		t.Errorf("stream = %v, want true", body["stream"])
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	roles := []string{"system", "user", "assistant", "tool"}
	for i, want := range roles {
		if got := msgs[i].(map[string]any)["role"]; got != want {
			t.Errorf("messages[%d].role = %v, want %s", i, got, want)
		}
	}
	if id := msgs[3].(map[string]any)["tool_call_id"]; id != "call_a" {
		t.Errorf("tool_call_id = %v", id)
	}
	fn := body["tools"].([]any)[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "access_cart_information" {
		t.Errorf("tool name = %v", fn["name"])
	}
}

func TestStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	_, err := collect(t, openai.New(srv.URL), ai.Context{Messages: []ai.Message{ai.NewUserText("x")}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("got %v, want 429 error", err)
	}
}
