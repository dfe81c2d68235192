// Package session stores runtime conversations keyed by app, user and
// session id.
//
// Two Service implementations exist: Memory keeps everything in process and
// FileService writes one append-only JSONL file per session:
//   - Line 1: Header (type=session, app, user, id, state, created)
//   - Lines 2+: MessageEntry or StateEntry, one per line
//
// Usage:
//
//	svc := session.NewFileService("./sessions")
//	sess, _ := svc.Create(ctx, "customer_service", "user", "", nil)
//	_ = svc.Append(ctx, sess.AppName, sess.UserID, sess.ID, msg)
package session

import (
	"context"
	"maps"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrExists    = errors.New("session already exists")
	ErrInvalidID = errors.New("invalid session key")
)

// Session is one conversation of a user with an app.
type Session struct {
	ID      string
	AppName string
	UserID  string

	// State is free-form session state shared with the agent.
	State map[string]any

	// Messages is the conversation history. List leaves it empty.
	Messages []ai.Message

	Created        time.Time
	LastUpdateTime time.Time
}

// Service creates, loads and updates sessions. Implementations are safe for
// concurrent use; serialising runs within one session is the caller's job.
type Service interface {
	// Create stores a new session. An empty id generates a UUID; an id
	// already in use returns ErrExists.
	Create(ctx context.Context, app, user, id string, state map[string]any) (*Session, error)

	// Get returns the session with its full history, or ErrNotFound.
	Get(ctx context.Context, app, user, id string) (*Session, error)

	// List returns the user's sessions without messages, most recently
	// updated first.
	List(ctx context.Context, app, user string) ([]*Session, error)

	Delete(ctx context.Context, app, user, id string) error

	// Append adds messages to the end of the history.
	Append(ctx context.Context, app, user, id string, msgs ...ai.Message) error

	// UpdateState merges delta into the session state; nil values remove
	// keys.
	UpdateState(ctx context.Context, app, user, id string, delta map[string]any) error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]*$`)

// validKey reports an error unless every part is usable as a file name.
func validKey(parts ...string) error {
	for _, p := range parts {
		if !keyPattern.MatchString(p) || len(p) > 128 {
			return errors.Wrapf(ErrInvalidID, "%q", p)
		}
	}
	return nil
}

func newSessionID() string { return uuid.New().String() }

func mergeState(dst, delta map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return dst
}

// clone copies the session so callers can't mutate stored state.
func (s *Session) clone(withMessages bool) *Session {
	out := *s
	out.State = maps.Clone(s.State)
	if out.State == nil {
		out.State = map[string]any{}
	}
	out.Messages = nil
	if withMessages {
		out.Messages = append([]ai.Message(nil), s.Messages...)
	}
	return &out
}
