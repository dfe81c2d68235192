package agent_test

import (
	"strings"
	"testing"
	"time"

	"github.com/bitop-dev/shopagent/pkg/agent"
	"github.com/bitop-dev/shopagent/pkg/prompts"
)

func TestBuildSystemPrompt_Default(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	prompt, err := agent.BuildSystemPrompt(agent.SystemPromptOptions{
		Profile: map[string]any{"customer_first_name": "Alex"},
		Now:     now,
	})
	if err != nil {
		t.Fatal(err)
	}
	checks := []string{
		"The profile of the current customer is:",
		`"customer_first_name": "Alex"`,
		`You are "Project Pro,"`,
		"Today's date is Sunday, June 15, 2025 (2025-06-15).",
	}
	for _, want := range checks {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.HasPrefix(prompt, "The profile of the current customer is:") {
		t.Error("profile should come first")
	}
}

func TestBuildSystemPrompt_CustomInstructionAndAppend(t *testing.T) {
	in := &prompts.Instruction{Body: "You are a returns desk assistant.\n"}
	prompt, err := agent.BuildSystemPrompt(agent.SystemPromptOptions{
		Instruction:  in,
		AppendPrompt: "The store closes at 9pm.",
		Now:          time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "You are a returns desk assistant.\n\nThe store closes at 9pm.\n\nToday's date is Thursday, January 2, 2025 (2025-01-02)."
	if !strings.HasPrefix(prompt, want) {
		t.Errorf("got %q", prompt)
	}
	if strings.Contains(prompt, "Project Pro") {
		t.Error("custom instruction should replace the default")
	}
}
