package client

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Reply is what a chat front end needs from one run response.
type Reply struct {
	// Text is the last non-empty text part, trimmed. Empty when the run
	// produced no text.
	Text string
	// ToolOutputs maps tool names to their decoded results.
	ToolOutputs map[string]any
	// OrderConfirmed is set when the text announces a placed order or the
	// CRM update tool ran.
	OrderConfirmed bool
}

// Phrases in a reply that mean an order went through.
var confirmationPhrases = []string{
	"order confirmed",
	"order has been placed",
	"order is confirmed",
	"successfully placed your order",
	"order has been submitted",
	"order id",
	"order number",
	"order processed",
	"order has been confirmed",
}

const crmTool = "update_salesforce_crm"
const cartTool = "access_cart_information"

var toolCodeName = regexp.MustCompile(`(\w+)\(`)

// ParseSSEResponse extracts the reply from a run response. It accepts an SSE
// body of "data:" events and a JSON array of events, and understands tool
// results reported as content parts, as actions.tool_code/tool_result and
// as a tool_calls list. Chunks that are not JSON objects are skipped.
func ParseSSEResponse(body []byte) Reply {
	reply := Reply{ToolOutputs: map[string]any{}}
	var lastTool string

	for _, ev := range splitEvents(body) {
		content := ev.Get("content")
		if content.IsObject() && content.Get("parts").Exists() {
			if text := strings.TrimSpace(content.Get("parts.0.text").String()); text != "" {
				reply.Text = text
				if announcesOrder(text) {
					reply.OrderConfirmed = true
				}
			}
		}

		actions := ev.Get("actions")
		if actions.IsArray() {
			actions = actions.Get("0")
		}
		if actions.IsObject() {
			code, result := actions.Get("tool_code").String(), actions.Get("tool_result")
			if code != "" && truthy(result) {
				if m := toolCodeName.FindStringSubmatch(code); m != nil {
					lastTool = m[1]
					reply.ToolOutputs[lastTool] = decodeValue(result)
				}
			}
			if fc := actions.Get("function_call"); fc.IsObject() {
				if name := fc.Get("name").String(); name != "" {
					lastTool = name
				}
			}
		}

		if content.IsObject() {
			for _, part := range content.Get("parts").Array() {
				if fc := part.Get("functionCall"); truthy(fc) {
					lastTool = fc.Get("name").String()
				}
				fr := part.Get("functionResponse")
				if !truthy(fr) {
					continue
				}
				var data gjson.Result
				for _, key := range []string{"response", "result", "content"} {
					if v := fr.Get(key); truthy(v) {
						data = v
						break
					}
				}
				if !truthy(data) {
					continue
				}
				name := fr.Get("name").String()
				if name == "" {
					name = lastTool
				}
				value := decodeValue(data)
				switch {
				case name != "":
					reply.ToolOutputs[name] = value
				case strings.Contains(strings.ToLower(data.Raw), "cart"):
					reply.ToolOutputs[cartTool] = value
				}
			}
		}

		for _, tc := range ev.Get("tool_calls").Array() {
			name, resp := tc.Get("name").String(), tc.Get("response")
			if name != "" && truthy(resp) {
				reply.ToolOutputs[name] = decodeValue(resp)
			}
		}
	}

	if _, ok := reply.ToolOutputs[crmTool]; ok {
		reply.OrderConfirmed = true
	}
	return reply
}

// splitEvents returns the JSON objects of an SSE body or of a JSON array.
func splitEvents(body []byte) []gjson.Result {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' && gjson.ValidBytes(trimmed) {
		return gjson.ParseBytes(trimmed).Array()
	}

	var out []gjson.Result
	for _, chunk := range strings.Split(string(trimmed), "data:") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" || !gjson.Valid(chunk) {
			continue
		}
		if r := gjson.Parse(chunk); r.IsObject() {
			out = append(out, r)
		}
	}
	return out
}

func announcesOrder(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range confirmationPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// decodeValue converts r to plain Go values. Strings holding JSON are
// decoded too.
func decodeValue(r gjson.Result) any {
	if r.Type == gjson.String {
		var v any
		if err := json.Unmarshal([]byte(r.Str), &v); err == nil {
			return v
		}
		return r.Str
	}
	return r.Value()
}

// truthy reports whether r is present and not an empty or zero value.
func truthy(r gjson.Result) bool {
	switch {
	case !r.Exists():
		return false
	case r.IsObject():
		return len(r.Map()) > 0
	case r.IsArray():
		return len(r.Array()) > 0
	}
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	}
	return true
}
