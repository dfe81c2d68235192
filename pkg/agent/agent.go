package agent

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

// ErrBusy is returned when a run is started while another is in progress.
var ErrBusy = errors.New("agent is already running")

// Agent orchestrates the model + tool loop for one conversation.
// Subscribe may be called from any goroutine; runs must not overlap.
type Agent struct {
	mu           sync.RWMutex
	systemPrompt string
	model        string
	provider     ai.Provider
	tools        *tools.Registry
	log          logrus.FieldLogger

	messages  []ai.Message
	ctxStart  int // first message sent to the model
	running   bool
	cost      CostUsage
	abortFn   context.CancelFunc
	abortOnce sync.Once

	listeners   map[int]func(Event)
	listenerSeq int
	listenerMu  sync.RWMutex
}

// Options configures a new Agent.
type Options struct {
	SystemPrompt string
	Model        string
	Provider     ai.Provider
	Tools        *tools.Registry    // nil → empty registry
	Log          logrus.FieldLogger // nil → discard
}

// New creates an Agent.
func New(opts Options) *Agent {
	reg := opts.Tools
	if reg == nil {
		reg = tools.NewRegistry()
	}
	log := opts.Log
	if log == nil {
		log = discardLogger()
	}
	return &Agent{
		systemPrompt: opts.SystemPrompt,
		model:        opts.Model,
		provider:     opts.Provider,
		tools:        reg,
		log:          log.WithField("component", "agent"),
		listeners:    make(map[int]func(Event)),
	}
}

func (a *Agent) SetSystemPrompt(s string) {
	a.mu.Lock()
	a.systemPrompt = s
	a.mu.Unlock()
}

func (a *Agent) SystemPrompt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.systemPrompt
}

func (a *Agent) Tools() *tools.Registry { return a.tools }

// ---------------------------------------------------------------------------
// Event subscriptions
// ---------------------------------------------------------------------------

// Subscribe registers a listener and returns an unsubscribe function.
// Listeners are called synchronously and never concurrently, even when
// tools run in parallel.
func (a *Agent) Subscribe(fn func(Event)) func() {
	a.listenerMu.Lock()
	id := a.listenerSeq
	a.listenerSeq++
	a.listeners[id] = fn
	a.listenerMu.Unlock()

	return func() {
		a.listenerMu.Lock()
		delete(a.listeners, id)
		a.listenerMu.Unlock()
	}
}

func (a *Agent) broadcast(e Event) {
	a.listenerMu.RLock()
	fns := make([]func(Event), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.listenerMu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// Prompt appends a user message and runs the loop until the model stops
// calling tools.
func (a *Agent) Prompt(ctx context.Context, text string, cfg Config) error {
	return a.PromptMessages(ctx, []ai.Message{ai.NewUserText(text)}, cfg)
}

// PromptMessages appends msgs and runs the loop.
func (a *Agent) PromptMessages(ctx context.Context, msgs []ai.Message, cfg Config) error {
	loopCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		cancel()
		return ErrBusy
	}
	a.running = true
	a.abortFn = cancel
	a.abortOnce = sync.Once{}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.abortFn = nil
		a.mu.Unlock()
		cancel()
	}()

	return a.runLoop(loopCtx, msgs, cfg)
}

// Continue runs the loop on the existing history, e.g. after an error turn.
func (a *Agent) Continue(ctx context.Context, cfg Config) error {
	msgs := a.Messages()
	if len(msgs) == 0 {
		return errors.New("no messages to continue from")
	}
	if msgs[len(msgs)-1].GetRole() == ai.RoleAssistant {
		return errors.New("last message is from the assistant; nothing to continue")
	}
	return a.PromptMessages(ctx, nil, cfg)
}

// Abort cancels the running loop, if any.
func (a *Agent) Abort() {
	a.mu.RLock()
	fn := a.abortFn
	a.mu.RUnlock()
	if fn != nil {
		a.abortOnce.Do(fn)
	}
}

// ---------------------------------------------------------------------------
// State accessors
// ---------------------------------------------------------------------------

func (a *Agent) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Messages returns a copy of the conversation history.
func (a *Agent) Messages() []ai.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ai.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// SetMessages replaces the history, typically with a stored session's.
func (a *Agent) SetMessages(msgs []ai.Message) {
	norm := make([]ai.Message, len(msgs))
	for i, m := range msgs {
		norm[i] = ai.Deref(m)
	}
	a.mu.Lock()
	a.messages = norm
	a.ctxStart = 0
	a.mu.Unlock()
}

// Cost returns the cumulative usage of every run so far.
func (a *Agent) Cost() CostUsage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cost
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (a *Agent) appendMsg(m ai.Message) {
	m = ai.Deref(m)
	a.mu.Lock()
	a.messages = append(a.messages, m)
	a.mu.Unlock()
}

// contextMessages is the part of the history the model still sees.
func (a *Agent) contextMessages() []ai.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ai.Message, len(a.messages)-a.ctxStart)
	copy(out, a.messages[a.ctxStart:])
	return out
}

// trimOldestTurn moves the model's view to the next user message, so that
// tool results never lose their call. The history itself is kept. It
// reports false when the view already starts at the last user message.
func (a *Agent) trimOldestTurn() (dropped int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := a.ctxStart + 1; i < len(a.messages); i++ {
		if _, isUser := a.messages[i].(ai.UserMessage); isUser {
			dropped = i - a.ctxStart
			a.ctxStart = i
			return dropped, true
		}
	}
	return 0, false
}
