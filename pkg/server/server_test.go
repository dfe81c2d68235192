package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/sse"
	"github.com/bitop-dev/shopagent/pkg/server"
	"github.com/bitop-dev/shopagent/pkg/session"
	"github.com/bitop-dev/shopagent/pkg/store"
	"github.com/bitop-dev/shopagent/pkg/tools"
	"github.com/bitop-dev/shopagent/pkg/tools/shop"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

const app = "customer_service"

// scriptedProvider returns one message per Stream call, repeating the last,
// and records every context it was called with.
type scriptedProvider struct {
	mu    sync.Mutex
	msgs  []*ai.AssistantMessage
	calls int
	seen  []ai.Context
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Stream(_ context.Context, _ string, c ai.Context, _ ai.StreamOptions) (<-chan ai.StreamEvent, func() (*ai.AssistantMessage, error)) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.seen = append(p.seen, c)
	p.mu.Unlock()

	if idx >= len(p.msgs) {
		idx = len(p.msgs) - 1
	}
	msg := *p.msgs[idx]
	ch := make(chan ai.StreamEvent)
	close(ch)
	return ch, func() (*ai.AssistantMessage, error) { return &msg, nil }
}

func (p *scriptedProvider) lastContext() ai.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[len(p.seen)-1]
}

func textMsg(text string) *ai.AssistantMessage {
	return &ai.AssistantMessage{
		Role:       ai.RoleAssistant,
		Content:    []ai.ContentBlock{ai.TextContent{Type: "text", Text: text}},
		StopReason: ai.StopReasonStop,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func cartCallMsg() *ai.AssistantMessage {
	return &ai.AssistantMessage{
		Role: ai.RoleAssistant,
		Content: []ai.ContentBlock{ai.ToolCall{
			Type:      "tool_call",
			ID:        "call-1",
			Name:      "access_cart_information",
			Arguments: map[string]any{"customer_id": "123"},
		}},
		StopReason: ai.StopReasonTool,
		Timestamp:  time.Now().UnixMilli(),
	}
}

type fakeProfiles struct {
	mu   sync.Mutex
	asks []string
}

func (f *fakeProfiles) Customer(_ context.Context, id string) (*store.CustomerProfile, error) {
	f.mu.Lock()
	f.asks = append(f.asks, id)
	f.mu.Unlock()
	if id == "missing" {
		return nil, store.ErrNotFound
	}
	return &store.CustomerProfile{CustomerID: id, FirstName: "Alex", LastName: "Johnson"}, nil
}

type fixture struct {
	srv      *httptest.Server
	provider *scriptedProvider
	sessions session.Service
	profiles *fakeProfiles
}

func newFixture(t *testing.T, token string, msgs ...*ai.AssistantMessage) *fixture {
	t.Helper()
	reg := tools.NewRegistry()
	shop.Register(reg, nil, nil)

	f := &fixture{
		provider: &scriptedProvider{msgs: msgs},
		sessions: session.NewMemory(),
		profiles: &fakeProfiles{},
	}
	h := server.New(server.Options{
		AppName:   app,
		Model:     "test-model",
		Provider:  f.provider,
		Tools:     reg,
		Sessions:  f.sessions,
		Profiles:  f.profiles,
		AuthToken: token,
		Now:       func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	f.srv = httptest.NewServer(h)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func (f *fixture) createSession(t *testing.T, id string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/apps/"+app+"/users/u1/sessions/"+id, `{"state":{}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session: status %d: %s", resp.StatusCode, body)
	}
}

func runBody(session, text string) string {
	return `{"app_name":"` + app + `","user_id":"u1","session_id":"` + session +
		`","new_message":{"role":"user","parts":[{"text":"` + text + `"}]},"streaming":false}`
}

// ── Health and auth ──────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	resp, body := f.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" {
		t.Errorf("status: got %q, want ok", got["status"])
	}
	if got["time"] != "2025-06-01T12:00:00Z" {
		t.Errorf("time: got %q", got["time"])
	}
}

func TestListApps(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	_, body := f.do(t, http.MethodGet, "/list-apps", "")
	var apps []string
	if err := json.Unmarshal(body, &apps); err != nil {
		t.Fatal(err)
	}
	if len(apps) != 1 || apps[0] != app {
		t.Errorf("apps: got %v", apps)
	}
}

func TestAuthToken(t *testing.T) {
	f := newFixture(t, "secret", textMsg("hi"))

	resp, body := f.do(t, http.MethodGet, "/list-apps", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"error"`) {
		t.Errorf("error body: got %s", body)
	}

	if resp, _ := f.do(t, http.MethodGet, "/health", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("health without token: got %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/list-apps", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token: got %d, want 200", resp.StatusCode)
	}
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func TestCreateSession(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))

	resp, body := f.do(t, http.MethodPost, "/apps/"+app+"/users/u1/sessions/s1", `{"state":{"customer_id":"123"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	var view server.SessionView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.ID != "s1" || view.AppName != app || view.UserID != "u1" {
		t.Errorf("view: got %+v", view)
	}
	if view.State["customer_id"] != "123" {
		t.Errorf("state: got %v", view.State)
	}

	resp, _ = f.do(t, http.MethodPost, "/apps/"+app+"/users/u1/sessions/s1", `{"state":{}}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: got %d, want 409", resp.StatusCode)
	}
}

func TestCreateSessionGeneratedID(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	resp, body := f.do(t, http.MethodPost, "/apps/"+app+"/users/u1/sessions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	var view server.SessionView
	_ = json.Unmarshal(body, &view)
	if len(view.ID) != 36 {
		t.Errorf("id: got %q, want a UUID", view.ID)
	}
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"unknown app", http.MethodPost, "/apps/other/users/u1/sessions/s1", `{}`, http.StatusNotFound},
		{"missing session", http.MethodGet, "/apps/" + app + "/users/u1/sessions/nope", "", http.StatusNotFound},
		{"invalid id", http.MethodPost, "/apps/" + app + "/users/u1/sessions/.hidden", `{}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/apps/" + app + "/users/u1/sessions/s2", `{`, http.StatusBadRequest},
		{"delete missing", http.MethodDelete, "/apps/" + app + "/users/u1/sessions/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.do(t, tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Errorf("got %d, want %d: %s", resp.StatusCode, tc.want, body)
			}
		})
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	f.createSession(t, "a")
	f.createSession(t, "b")

	_, body := f.do(t, http.MethodGet, "/apps/"+app+"/users/u1/sessions", "")
	var list []server.SessionView
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("list: got %d sessions, want 2", len(list))
	}

	resp, _ := f.do(t, http.MethodDelete, "/apps/"+app+"/users/u1/sessions/a", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", resp.StatusCode)
	}
	_, body = f.do(t, http.MethodGet, "/apps/"+app+"/users/u1/sessions", "")
	_ = json.Unmarshal(body, &list)
	if len(list) != 1 || list[0].ID != "b" {
		t.Errorf("after delete: got %+v", list)
	}
}

// ── Runs ─────────────────────────────────────────────────────────────────────

func TestRunReturnsEvents(t *testing.T) {
	f := newFixture(t, "", cartCallMsg(), textMsg("Your cart has running shoes."))
	f.createSession(t, "s1")

	resp, body := f.do(t, http.MethodPost, "/run", runBody("s1", "what is in my cart?"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	var events []server.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("events: got %d, want 3: %s", len(events), body)
	}

	call := events[0].Content.Parts[0].FunctionCall
	if call == nil || call.Name != "access_cart_information" || call.ID != "call-1" {
		t.Errorf("event 0: got %+v", events[0].Content)
	}
	if events[0].Author != "customer_service_agent" {
		t.Errorf("author: got %q", events[0].Author)
	}

	if events[1].Content.Role != "user" {
		t.Errorf("event 1 role: got %q, want user", events[1].Content.Role)
	}
	fr := events[1].Content.Parts[0].FunctionResponse
	if fr == nil || fr.Name != "access_cart_information" {
		t.Fatalf("event 1: got %+v", events[1].Content)
	}
	cart, ok := fr.Response.(map[string]any)
	if !ok || cart["cart"] == nil || cart["subtotal"] == nil {
		t.Errorf("function response: got %#v", fr.Response)
	}

	if got := events[2].Content.Parts[0].Text; got != "Your cart has running shoes." {
		t.Errorf("text: got %q", got)
	}
	if events[0].InvocationID == "" || events[0].InvocationID != events[2].InvocationID {
		t.Errorf("invocation ids differ: %q vs %q", events[0].InvocationID, events[2].InvocationID)
	}
}

func TestRunStoresHistory(t *testing.T) {
	f := newFixture(t, "", cartCallMsg(), textMsg("done"))
	f.createSession(t, "s1")
	f.do(t, http.MethodPost, "/run", runBody("s1", "show cart"))

	sess, err := f.sessions.Get(context.Background(), app, "u1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("messages: got %d, want 4", len(sess.Messages))
	}

	_, body := f.do(t, http.MethodGet, "/apps/"+app+"/users/u1/sessions/s1", "")
	var view server.SessionView
	_ = json.Unmarshal(body, &view)
	if len(view.Events) != 4 {
		t.Fatalf("session events: got %d, want 4", len(view.Events))
	}
	if view.Events[0].Author != "user" || view.Events[0].Content.Parts[0].Text != "show cart" {
		t.Errorf("first event: got %+v", view.Events[0])
	}

	// The second run sees the stored history.
	f.do(t, http.MethodPost, "/run", runBody("s1", "thanks"))
	if got := len(f.provider.lastContext().Messages); got != 5 {
		t.Errorf("history sent to model: got %d messages, want 5", got)
	}
}

func TestRunSSE(t *testing.T) {
	f := newFixture(t, "", cartCallMsg(), textMsg("All set."))
	f.createSession(t, "s1")

	resp, body := f.do(t, http.MethodPost, "/run_sse", runBody("s1", "cart please"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: got %q", ct)
	}

	r := sse.NewReader(strings.NewReader(string(body)))
	var events []server.Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		var e server.Event
		if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
			t.Fatalf("event %q: %v", ev.Data, err)
		}
		events = append(events, e)
	}
	if len(events) != 3 {
		t.Fatalf("events: got %d, want 3", len(events))
	}
	if got := events[2].Content.Parts[0].Text; got != "All set." {
		t.Errorf("last text: got %q", got)
	}
}

func TestRunAcceptsCamelCase(t *testing.T) {
	f := newFixture(t, "", textMsg("hello"))
	f.createSession(t, "s1")
	body := `{"appName":"` + app + `","userId":"u1","sessionId":"s1","newMessage":{"role":"user","parts":[{"text":"hi"}]}}`
	resp, out := f.do(t, http.MethodPost, "/run", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, out)
	}
}

func TestRunErrors(t *testing.T) {
	f := newFixture(t, "", textMsg("hello"))
	f.createSession(t, "s1")
	cases := []struct {
		name, body string
		want       int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing ids", `{"app_name":"` + app + `"}`, http.StatusBadRequest},
		{"no text", `{"app_name":"` + app + `","user_id":"u1","session_id":"s1","new_message":{"parts":[]}}`, http.StatusBadRequest},
		{"unknown session", runBody("nope", "hi"), http.StatusNotFound},
		{"unknown app", strings.Replace(runBody("s1", "hi"), app, "other", 1), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, path := range []string{"/run", "/run_sse"} {
				resp, body := f.do(t, http.MethodPost, path, tc.body)
				if resp.StatusCode != tc.want {
					t.Errorf("%s: got %d, want %d: %s", path, resp.StatusCode, tc.want, body)
				}
			}
		})
	}
}

func TestRunModelErrorIsAnEvent(t *testing.T) {
	f := newFixture(t, "", &ai.AssistantMessage{
		Role:         ai.RoleAssistant,
		StopReason:   ai.StopReasonError,
		ErrorMessage: "quota exceeded",
	})
	f.createSession(t, "s1")

	resp, body := f.do(t, http.MethodPost, "/run", runBody("s1", "hi"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, body)
	}
	var events []server.Event
	_ = json.Unmarshal(body, &events)
	if len(events) != 1 || events[0].ErrorMessage != "quota exceeded" || events[0].ErrorCode != "error" {
		t.Errorf("events: got %s", body)
	}
}

// ── System prompt ────────────────────────────────────────────────────────────

func TestRunEmbedsCustomerProfile(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	f.createSession(t, "s1")
	f.do(t, http.MethodPost, "/run", runBody("s1", "hello"))

	sp := f.provider.lastContext().SystemPrompt
	if !strings.Contains(sp, `"customer_first_name": "Alex"`) {
		t.Errorf("profile missing from system prompt:\n%s", sp)
	}
	if !strings.Contains(sp, "2025-06-01") {
		t.Errorf("date missing from system prompt")
	}
	if len(f.profiles.asks) == 0 || f.profiles.asks[0] != "123" {
		t.Errorf("profile lookups: got %v, want [123]", f.profiles.asks)
	}
}

func TestRunStateDeltaSelectsCustomer(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	f.createSession(t, "s1")
	body := strings.TrimSuffix(runBody("s1", "hello"), "}") + `,"state_delta":{"customer_id":"777"}}`
	if resp, out := f.do(t, http.MethodPost, "/run", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, out)
	}

	if got := f.profiles.asks[len(f.profiles.asks)-1]; got != "777" {
		t.Errorf("customer: got %q, want 777", got)
	}
	sess, _ := f.sessions.Get(context.Background(), app, "u1", "s1")
	if sess.State["customer_id"] != "777" {
		t.Errorf("state: got %v", sess.State)
	}
}

func TestRunWithoutProfile(t *testing.T) {
	f := newFixture(t, "", textMsg("hi"))
	f.createSession(t, "s1")
	body := strings.TrimSuffix(runBody("s1", "hello"), "}") + `,"state_delta":{"customer_id":"missing"}}`
	if resp, out := f.do(t, http.MethodPost, "/run", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d: %s", resp.StatusCode, out)
	}
	if sp := f.provider.lastContext().SystemPrompt; strings.Contains(sp, "profile of the current customer") {
		t.Errorf("unexpected profile in prompt")
	}
}
