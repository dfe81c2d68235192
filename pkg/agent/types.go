// Package agent runs the tool-calling loop between a model provider and the
// shop tools, and publishes lifecycle events for the runtime server.
package agent

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/models"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// EventType identifies an agent lifecycle event.
type EventType string

const (
	EventAgentStart EventType = "agent_start"
	EventAgentEnd   EventType = "agent_end"

	// Turn = one assistant response + any resulting tool calls/results
	EventTurnStart EventType = "turn_start"
	EventTurnEnd   EventType = "turn_end"

	EventMessageStart  EventType = "message_start"
	EventMessageUpdate EventType = "message_update"
	EventMessageEnd    EventType = "message_end"

	EventToolStart  EventType = "tool_execution_start"
	EventToolUpdate EventType = "tool_execution_update"
	EventToolEnd    EventType = "tool_execution_end"

	// The loop stopped at MaxTurns before the model finished.
	EventTurnLimitReached EventType = "turn_limit_reached"

	EventRetry      EventType = "retry"
	EventToolDenied EventType = "tool_denied"
)

// CostUsage tracks cumulative token use and cost across turns.
type CostUsage struct {
	InputTokens  int
	OutputTokens int
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
}

func (c *CostUsage) add(model string, u ai.Usage) {
	cost := models.CostOf(model, u)
	c.InputTokens += u.Input
	c.OutputTokens += u.Output
	c.InputCost += cost.Input
	c.OutputCost += cost.Output
	c.TotalCost += cost.Total
}

// Event carries a lifecycle notification from the agent loop.
type Event struct {
	Type EventType

	// Set for message_* events
	Message ai.Message

	// Set for message_update
	StreamEvent *ai.StreamEvent

	// Set for turn_end
	ToolResults  []ai.ToolResultMessage
	CostUsage    CostUsage
	TurnDuration time.Duration

	// Set for tool_* events
	ToolCallID string
	ToolName   string
	ToolArgs   map[string]any
	ToolResult *tools.Result
	IsError    bool

	// Set for agent_end
	NewMessages []ai.Message

	// Set for retry events
	RetryAttempt int
	RetryError   string
	RetryDelay   time.Duration

	Metrics *TurnMetrics
}

// TurnMetrics captures per-turn timings and usage.
type TurnMetrics struct {
	TurnNumber      int
	ProviderLatency time.Duration
	ToolDurations   map[string]time.Duration
	InputTokens     int
	OutputTokens    int
	TotalCost       float64
	Error           string
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// ConfirmResult is the answer of a ConfirmToolCall hook.
type ConfirmResult int

const (
	ConfirmAllow ConfirmResult = iota
	// ConfirmDeny skips the call; the model sees a denial result.
	ConfirmDeny
	// ConfirmAbort skips the call and ends the run with an error.
	ConfirmAbort
)

// Config controls one run of the loop.
type Config struct {
	// ConfirmToolCall gates every tool call. nil approves everything.
	ConfirmToolCall func(name string, args map[string]any) (ConfirmResult, error)

	StreamOptions ai.StreamOptions

	// MaxTurns caps model calls per run. 0 = unlimited.
	MaxTurns int

	// MaxRetries is how often a retryable provider error is retried, with
	// RetryBaseDelay * 2^attempt between attempts (default base 1s).
	MaxRetries     int
	RetryBaseDelay time.Duration

	// MaxToolConcurrency > 1 runs the tool calls of one turn in parallel.
	MaxToolConcurrency int

	// ToolTimeout bounds a single tool execution. 0 = none.
	ToolTimeout time.Duration

	// MaxCostUSD stops the run once cumulative cost exceeds it. 0 = none.
	MaxCostUSD float64

	OnMetrics func(TurnMetrics)
}

// AutoApproveAll is a ConfirmToolCall hook that allows every call.
func AutoApproveAll(string, map[string]any) (ConfirmResult, error) {
	return ConfirmAllow, nil
}

const defaultRetryBaseDelay = time.Second

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
