package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitop-dev/shopagent/pkg/prompts"
)

// SystemPromptOptions controls how the system prompt is assembled.
type SystemPromptOptions struct {
	// Instruction is the agent persona; nil uses prompts.Default().
	Instruction *prompts.Instruction

	// Profile is the current customer's profile, embedded as JSON ahead of
	// the instruction. nil leaves it out.
	Profile any

	// AppendPrompt is added after the instruction.
	AppendPrompt string

	// Now reports the current date to the model. Zero means time.Now().
	Now time.Time
}

// BuildSystemPrompt assembles the customer profile, the instruction, any
// appended text and the current date.
func BuildSystemPrompt(opts SystemPromptOptions) (string, error) {
	in := opts.Instruction
	if in == nil {
		in = prompts.Default()
	}
	body, err := in.Render(opts.Profile)
	if err != nil {
		return "", err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(body, "\n"))
	if opts.AppendPrompt != "" {
		sb.WriteString("\n\n")
		sb.WriteString(opts.AppendPrompt)
	}
	fmt.Fprintf(&sb, "\n\nToday's date is %s (%s). Use it to resolve relative dates such as \"tomorrow\" when scheduling services.",
		now.Format("Monday, January 2, 2006"), now.Format("2006-01-02"))
	return sb.String(), nil
}
