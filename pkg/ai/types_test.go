package ai_test

import (
	"testing"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

func TestDeref(t *testing.T) {
	user := ai.NewUserText("hi")
	asst := ai.AssistantMessage{Role: ai.RoleAssistant, Model: "gemini-2.5-flash"}
	res := ai.ToolResultMessage{Role: ai.RoleToolResult, ToolName: "access_cart_information"}

	cases := []struct {
		name string
		in   ai.Message
	}{
		{"user pointer", &user},
		{"assistant pointer", &asst},
		{"tool result pointer", &res},
		{"user value", user},
		{"assistant value", asst},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			switch got := ai.Deref(c.in).(type) {
			case ai.UserMessage:
				if ai.JoinText(got.Content) != "hi" {
					t.Errorf("got %+v", got)
				}
			case ai.AssistantMessage:
				if got.Model != "gemini-2.5-flash" {
					t.Errorf("got %+v", got)
				}
			case ai.ToolResultMessage:
				if got.ToolName != "access_cart_information" {
					t.Errorf("got %+v", got)
				}
			default:
				t.Errorf("got %T, want a value type", got)
			}
		})
	}
}
