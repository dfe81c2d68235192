package agent

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

// runLoop is the core agentic loop. It:
//  1. Streams an assistant turn from the provider, retrying transient errors.
//  2. Executes the tool calls of that turn, in parallel when configured.
//  3. Appends the tool results and repeats until the model stops calling
//     tools, MaxTurns is hit or the cost budget is spent.
func (a *Agent) runLoop(ctx context.Context, newMsgs []ai.Message, cfg Config) error {
	var emitMu sync.Mutex
	emit := func(e Event) {
		emitMu.Lock()
		defer emitMu.Unlock()
		a.broadcast(e)
	}

	first := len(a.Messages())
	emit(Event{Type: EventAgentStart})
	defer func() {
		emit(Event{Type: EventAgentEnd, NewMessages: a.Messages()[first:]})
	}()

	for _, m := range newMsgs {
		a.appendMsg(m)
		emit(Event{Type: EventMessageStart, Message: m})
		emit(Event{Type: EventMessageEnd, Message: m})
	}

	var runCost CostUsage
	for turn := 1; ; turn++ {
		// ── Guards ──────────────────────────────────────────────────────
		if cfg.MaxTurns > 0 && turn > cfg.MaxTurns {
			a.log.WithField("max_turns", cfg.MaxTurns).Warn("turn limit reached")
			emit(Event{Type: EventTurnLimitReached})
			return nil
		}
		if cfg.MaxCostUSD > 0 && runCost.TotalCost >= cfg.MaxCostUSD {
			a.log.WithField("cost_usd", runCost.TotalCost).Warn("cost budget exhausted")
			emit(Event{Type: EventTurnLimitReached})
			return nil
		}

		emit(Event{Type: EventTurnStart})
		turnStart := time.Now()

		msg, latency := a.streamWithRetry(ctx, cfg, emit)
		a.appendMsg(msg)
		runCost.add(a.model, msg.Usage)
		a.mu.Lock()
		a.cost.add(a.model, msg.Usage)
		a.mu.Unlock()

		metrics := TurnMetrics{
			TurnNumber:      turn,
			ProviderLatency: latency,
			InputTokens:     msg.Usage.Input,
			OutputTokens:    msg.Usage.Output,
			TotalCost:       runCost.TotalCost,
			Error:           msg.ErrorMessage,
		}

		var results []ai.ToolResultMessage
		calls := msg.ToolCalls()
		if msg.StopReason != ai.StopReasonError && msg.StopReason != ai.StopReasonAborted && len(calls) > 0 {
			var durations map[string]time.Duration
			var err error
			results, durations, err = a.executeToolCalls(ctx, calls, cfg, emit)
			for _, r := range results {
				a.appendMsg(r)
			}
			metrics.ToolDurations = durations
			if err != nil {
				return err
			}
		}

		duration := time.Since(turnStart)
		a.log.WithFields(logrus.Fields{
			"turn":          turn,
			"model":         a.model,
			"stop_reason":   msg.StopReason,
			"tool_calls":    len(calls),
			"input_tokens":  msg.Usage.Input,
			"output_tokens": msg.Usage.Output,
			"cost_usd":      runCost.TotalCost,
			"duration":      duration,
		}).Debug("turn complete")

		emit(Event{
			Type:         EventTurnEnd,
			Message:      *msg,
			ToolResults:  results,
			CostUsage:    runCost,
			TurnDuration: duration,
			Metrics:      &metrics,
		})
		if cfg.OnMetrics != nil {
			cfg.OnMetrics(metrics)
		}

		switch {
		case msg.StopReason == ai.StopReasonError:
			a.log.WithField("error", msg.ErrorMessage).Error("model call failed")
			return nil
		case msg.StopReason == ai.StopReasonAborted:
			return nil
		case len(calls) == 0:
			return nil
		}
	}
}

// streamWithRetry streams one turn, retrying retryable provider errors with
// exponential backoff. A context overflow drops the oldest turn from the
// model input and tries again at once, until only the current prompt is
// left. message_end is emitted once, for the final attempt.
func (a *Agent) streamWithRetry(ctx context.Context, cfg Config, emit func(Event)) (*ai.AssistantMessage, time.Duration) {
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	for attempt := 0; ; {
		start := time.Now()
		msg := a.streamResponse(ctx, cfg, emit)
		latency := time.Since(start)

		if ai.IsContextOverflow(msg) && ctx.Err() == nil {
			if dropped, ok := a.trimOldestTurn(); ok {
				a.log.WithFields(logrus.Fields{
					"dropped_messages": dropped,
					"error":            msg.ErrorMessage,
				}).Warn("context window exceeded, dropping oldest turn")
				emit(Event{Type: EventRetry, RetryError: msg.ErrorMessage})
				continue
			}
		}
		if attempt >= cfg.MaxRetries || !ai.IsRetryable(msg) {
			emit(Event{Type: EventMessageEnd, Message: *msg})
			return msg, latency
		}

		delay := base << attempt
		attempt++
		a.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
			"error":   msg.ErrorMessage,
		}).Warn("retrying model call")
		emit(Event{Type: EventRetry, RetryAttempt: attempt, RetryError: msg.ErrorMessage, RetryDelay: delay})

		select {
		case <-ctx.Done():
			msg.StopReason = ai.StopReasonAborted
			emit(Event{Type: EventMessageEnd, Message: *msg})
			return msg, latency
		case <-time.After(delay):
		}
	}
}

// streamResponse calls the provider and fans stream events to listeners.
// It never returns nil; failures come back as error turns.
func (a *Agent) streamResponse(ctx context.Context, cfg Config, emit func(Event)) *ai.AssistantMessage {
	a.mu.RLock()
	prov, model, system := a.provider, a.model, a.systemPrompt
	a.mu.RUnlock()

	if prov == nil {
		return ai.ErrorMessage("", model, errors.New("no model provider configured"))
	}

	llmCtx := ai.Context{
		SystemPrompt: system,
		Messages:     llmMessages(a.contextMessages()),
		Tools:        a.tools.Definitions(),
	}

	partial := &ai.AssistantMessage{
		Role:      ai.RoleAssistant,
		Model:     model,
		Provider:  prov.Name(),
		Timestamp: time.Now().UnixMilli(),
	}
	emit(Event{Type: EventMessageStart, Message: *partial})

	events, wait := prov.Stream(ctx, model, llmCtx, cfg.StreamOptions)
	for ev := range events {
		if ev.Partial != nil {
			partial = ev.Partial
		}
		switch ev.Type {
		case ai.StreamEventTextDelta,
			ai.StreamEventThinkingDelta,
			ai.StreamEventToolCallStart,
			ai.StreamEventToolCallDelta,
			ai.StreamEventToolCallEnd:
			ev := ev
			emit(Event{Type: EventMessageUpdate, Message: *partial, StreamEvent: &ev})
		case ai.StreamEventError:
			partial.StopReason = ai.StopReasonError
			if ev.Error != nil {
				partial.ErrorMessage = ev.Error.Error()
			}
		}
	}

	final, err := wait()
	switch {
	case err != nil:
		final = partial
		final.StopReason = ai.StopReasonError
		final.ErrorMessage = err.Error()
	case final == nil:
		final = partial
	}
	if ctx.Err() != nil && final.StopReason == ai.StopReasonError {
		final.StopReason = ai.StopReasonAborted
	}
	final.Role = ai.RoleAssistant
	if final.Model == "" {
		final.Model = model
	}
	if final.Provider == "" {
		final.Provider = prov.Name()
	}
	if final.Timestamp == 0 {
		final.Timestamp = time.Now().UnixMilli()
	}
	return final
}

// llmMessages drops failed assistant turns that carry no content; providers
// reject empty assistant messages.
func llmMessages(history []ai.Message) []ai.Message {
	out := make([]ai.Message, 0, len(history))
	for _, m := range history {
		if am, ok := m.(ai.AssistantMessage); ok && len(am.Content) == 0 &&
			(am.StopReason == ai.StopReasonError || am.StopReason == ai.StopReasonAborted) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ---------------------------------------------------------------------------
// Tool execution
// ---------------------------------------------------------------------------

// executeToolCalls confirms every call in order, then runs the approved ones,
// sequentially or on an ants pool. Results keep the order of calls.
func (a *Agent) executeToolCalls(
	ctx context.Context,
	calls []ai.ToolCall,
	cfg Config,
	emit func(Event),
) ([]ai.ToolResultMessage, map[string]time.Duration, error) {
	results := make([]ai.ToolResultMessage, len(calls))
	var approved []int

	for i, tc := range calls {
		decision := ConfirmAllow
		if cfg.ConfirmToolCall != nil {
			var err error
			decision, err = cfg.ConfirmToolCall(tc.Name, tc.Arguments)
			if err != nil {
				return abortAll(calls), nil, errors.Wrapf(err, "confirm %s", tc.Name)
			}
		}
		switch decision {
		case ConfirmAbort:
			return abortAll(calls), nil, errors.Errorf("tool call %s aborted", tc.Name)
		case ConfirmDeny:
			emit(Event{Type: EventToolDenied, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Arguments})
			res := tools.ErrorResult(errors.Errorf("tool call %s was denied by the user", tc.Name))
			results[i] = toolResultMessage(tc, res, true)
		default:
			approved = append(approved, i)
		}
	}

	var mu sync.Mutex
	durations := make(map[string]time.Duration, len(approved))
	run := func(i int) {
		start := time.Now()
		results[i] = a.runTool(ctx, calls[i], cfg, emit)
		mu.Lock()
		durations[calls[i].Name] += time.Since(start)
		mu.Unlock()
	}

	if cfg.MaxToolConcurrency <= 1 || len(approved) <= 1 {
		for _, i := range approved {
			run(i)
		}
		return results, durations, nil
	}

	size := cfg.MaxToolConcurrency
	if size > len(approved) {
		size = len(approved)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create tool pool")
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, i := range approved {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			run(i)
		}); err != nil {
			wg.Done()
			run(i)
		}
	}
	wg.Wait()
	return results, durations, nil
}

// runTool executes one call and emits its lifecycle events.
func (a *Agent) runTool(ctx context.Context, tc ai.ToolCall, cfg Config, emit func(Event)) ai.ToolResultMessage {
	emit(Event{Type: EventToolStart, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Arguments})

	start := time.Now()
	result, isError := a.executeSingleTool(ctx, tc, cfg, emit)
	entry := a.log.WithField("tool", tc.Name).WithField("duration", time.Since(start))
	if isError {
		entry.WithField("result", ai.JoinText(result.Content)).Warn("tool failed")
	} else {
		entry.Debug("tool executed")
	}

	emit(Event{
		Type:       EventToolEnd,
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		ToolArgs:   tc.Arguments,
		ToolResult: &result,
		IsError:    isError,
	})

	msg := toolResultMessage(tc, result, isError)
	emit(Event{Type: EventMessageStart, Message: msg})
	emit(Event{Type: EventMessageEnd, Message: msg})
	return msg
}

// executeSingleTool validates arguments and runs the tool. Panics and
// timeouts become error results.
func (a *Agent) executeSingleTool(ctx context.Context, tc ai.ToolCall, cfg Config, emit func(Event)) (res tools.Result, isError bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("tool", tc.Name).WithField("panic", r).Error("tool panicked")
			res, isError = tools.ErrorResult(errors.Errorf("tool %s panicked: %v", tc.Name, r)), true
		}
	}()

	tool := a.tools.Get(tc.Name)
	if tool == nil {
		return tools.ErrorResult(errors.Errorf("tool %q not found", tc.Name)), true
	}
	params, err := tools.ValidateAndCoerce(tool, tc.Arguments)
	if err != nil {
		return tools.ErrorResult(err), true
	}

	if cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ToolTimeout)
		defer cancel()
	}

	onUpdate := func(partial tools.Result) {
		emit(Event{
			Type:       EventToolUpdate,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			ToolArgs:   tc.Arguments,
			ToolResult: &partial,
		})
	}

	result, err := tool.Execute(ctx, tc.ID, params, onUpdate)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tools.ErrorResult(errors.Errorf("tool %s timed out after %s", tc.Name, cfg.ToolTimeout)), true
	}
	if err != nil {
		return tools.ErrorResult(err), true
	}
	return result, false
}

// abortAll answers every call of an aborted turn so the history stays valid
// for the next model call.
func abortAll(calls []ai.ToolCall) []ai.ToolResultMessage {
	out := make([]ai.ToolResultMessage, len(calls))
	for i, tc := range calls {
		out[i] = toolResultMessage(tc, tools.ErrorResult(errors.New("tool call aborted")), true)
	}
	return out
}

func toolResultMessage(tc ai.ToolCall, r tools.Result, isError bool) ai.ToolResultMessage {
	return ai.ToolResultMessage{
		Role:       ai.RoleToolResult,
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    append([]ai.ContentBlock(nil), r.Content...),
		Details:    r.Details,
		IsError:    isError,
		Timestamp:  time.Now().UnixMilli(),
	}
}
