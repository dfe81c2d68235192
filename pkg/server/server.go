// Package server exposes the shop agent over HTTP: session management and
// agent runs, answered as a JSON array (/run) or a server-sent event stream
// (/run_sse).
//
// Every run loads the session history into a fresh agent, attaches the
// current customer's profile to the system prompt and appends the new
// messages to the session when the run ends. Runs within one session are
// serialised.
package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/agent"
	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/prompts"
	"github.com/bitop-dev/shopagent/pkg/session"
	"github.com/bitop-dev/shopagent/pkg/store"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

var (
	errBadRequest = errors.New("bad request")
	errUnknownApp = errors.New("app not found")
)

// ProfileSource looks up the customer profile embedded in the system prompt.
// *store.Store implements it.
type ProfileSource interface {
	Customer(ctx context.Context, customerID string) (*store.CustomerProfile, error)
}

// Options configures a Server.
type Options struct {
	AppName  string
	Model    string
	Provider ai.Provider
	Tools    *tools.Registry
	Sessions session.Service // nil → in-memory sessions
	Profiles ProfileSource   // nil → no profile in the prompt

	// Instruction is the agent persona; nil uses prompts.Default().
	Instruction  *prompts.Instruction
	AppendPrompt string
	Loop         agent.Config

	// AuthToken, when set, is required as "Authorization: Bearer <token>".
	AuthToken string

	Log logrus.FieldLogger
	Now func() time.Time
}

// Server is an http.Handler.
type Server struct {
	opts    Options
	log     logrus.FieldLogger
	handler http.Handler
	locks   *sessionLocks
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Sessions == nil {
		opts.Sessions = session.NewMemory()
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	if opts.Instruction == nil {
		opts.Instruction = prompts.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	s := &Server{
		opts:  opts,
		log:   log.WithField("component", "server"),
		locks: newSessionLocks(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/list-apps", s.listAppsHandler).Methods(http.MethodGet)

	sessions := r.PathPrefix("/apps/{app}/users/{user}/sessions").Subrouter()
	sessions.HandleFunc("", s.createSessionHandler).Methods(http.MethodPost)
	sessions.HandleFunc("", s.listSessionsHandler).Methods(http.MethodGet)
	sessions.HandleFunc("/{session}", s.createSessionHandler).Methods(http.MethodPost)
	sessions.HandleFunc("/{session}", s.getSessionHandler).Methods(http.MethodGet)
	sessions.HandleFunc("/{session}", s.deleteSessionHandler).Methods(http.MethodDelete)

	r.HandleFunc("/run", s.runHandler).Methods(http.MethodPost)
	r.HandleFunc("/run_sse", s.runSSEHandler).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderHTTPError(requestLog(r), w, errors.Errorf("no route for %s %s", r.Method, r.URL.Path), http.StatusNotFound)
	})

	s.handler = &logHandler{log: s.log, next: requireToken(opts.AuthToken, r)}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// agentName is the author of model events.
func (s *Server) agentName() string {
	if s.opts.Instruction.Name != "" {
		return s.opts.Instruction.Name
	}
	return s.opts.AppName
}

func (s *Server) checkApp(app string) error {
	if app != s.opts.AppName {
		return errors.Wrapf(errUnknownApp, "%q", app)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// run executes one agent invocation on a session and calls emit for every
// message the run produces, in order. New messages are stored even when the
// client goes away mid-run.
func (s *Server) run(ctx context.Context, req runRequest, log logrus.FieldLogger, emit func(Event)) error {
	if err := s.checkApp(req.AppName); err != nil {
		return err
	}

	unlock, err := s.locks.lock(ctx, req.AppName+"/"+req.UserID+"/"+req.SessionID)
	if err != nil {
		return errors.Wrap(err, "wait for session")
	}
	defer unlock()

	sessions := s.opts.Sessions
	if len(req.StateDelta) > 0 {
		if err := sessions.UpdateState(ctx, req.AppName, req.UserID, req.SessionID, req.StateDelta); err != nil {
			return err
		}
	}
	sess, err := sessions.Get(ctx, req.AppName, req.UserID, req.SessionID)
	if err != nil {
		return err
	}

	prompt, err := agent.BuildSystemPrompt(agent.SystemPromptOptions{
		Instruction:  s.opts.Instruction,
		Profile:      s.profile(ctx, sess, log),
		AppendPrompt: s.opts.AppendPrompt,
		Now:          s.opts.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "build system prompt")
	}

	a := agent.New(agent.Options{
		SystemPrompt: prompt,
		Model:        s.opts.Model,
		Provider:     s.opts.Provider,
		Tools:        s.opts.Tools,
		Log:          log,
	})
	a.SetMessages(sess.Messages)

	invocationID := newInvocationID()
	author := s.agentName()
	unsubscribe := a.Subscribe(func(e agent.Event) {
		if e.Type != agent.EventMessageEnd || e.Message.GetRole() == ai.RoleUser {
			return
		}
		if ev, ok := eventFromMessage(invocationID, author, e.Message); ok {
			emit(ev)
		}
	})
	defer unsubscribe()

	user := ai.NewUserText(req.Text)
	user.Timestamp = s.opts.Now().UnixMilli()

	log = log.WithFields(logrus.Fields{"session": req.SessionID, "invocation": invocationID})
	log.Info("run started")
	runErr := a.PromptMessages(ctx, []ai.Message{user}, s.opts.Loop)

	newMsgs := a.Messages()[len(sess.Messages):]
	if err := sessions.Append(context.WithoutCancel(ctx), req.AppName, req.UserID, req.SessionID, newMsgs...); err != nil {
		log.WithError(err).Error("save session")
		if runErr == nil {
			runErr = err
		}
	}

	cost := a.Cost()
	log.WithFields(logrus.Fields{
		"messages":      len(newMsgs),
		"input_tokens":  cost.InputTokens,
		"output_tokens": cost.OutputTokens,
		"cost_usd":      cost.TotalCost,
	}).Info("run complete")
	return runErr
}

// profile resolves the customer for the session: state "customer_id" when
// set, the instruction's customer otherwise.
func (s *Server) profile(ctx context.Context, sess *session.Session, log logrus.FieldLogger) any {
	if s.opts.Profiles == nil {
		return nil
	}
	id := s.opts.Instruction.CustomerID
	if v, ok := sess.State["customer_id"].(string); ok && v != "" {
		id = v
	}
	if id == "" {
		return nil
	}
	p, err := s.opts.Profiles.Customer(ctx, id)
	if err != nil {
		log.WithError(err).WithField("customer_id", id).Warn("customer profile unavailable")
		return nil
	}
	return p
}

// ---------------------------------------------------------------------------
// Session locks
// ---------------------------------------------------------------------------

type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[string]*sessionLock)}
}

// lock blocks until key is free or ctx is done.
func (l *sessionLocks) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.m[key]
	if !ok {
		sl = &sessionLock{ch: make(chan struct{}, 1)}
		l.m[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}

	select {
	case sl.ch <- struct{}{}:
		return func() {
			<-sl.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
