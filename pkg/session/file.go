package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// maxLineSize bounds one JSONL entry; tool results with product lists can be
// large.
const maxLineSize = 8 << 20

// FileService stores each session as dir/<app>/<user>/<id>.jsonl.
type FileService struct {
	dir string
	mu  sync.Mutex
}

func NewFileService(dir string) *FileService {
	return &FileService{dir: dir}
}

var _ Service = (*FileService)(nil)

func (f *FileService) path(app, user, id string) string {
	return filepath.Join(f.dir, app, user, id+".jsonl")
}

func (f *FileService) Create(_ context.Context, app, user, id string, state map[string]any) (*Session, error) {
	if id == "" {
		id = newSessionID()
	}
	if err := validKey(app, user, id); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(app, user, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "session: mkdir %s", filepath.Dir(path))
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrExists
		}
		return nil, errors.Wrapf(err, "session: create %s", path)
	}
	defer fh.Close()

	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		AppName:        app,
		UserID:         user,
		State:          mergeState(nil, state),
		Created:        now,
		LastUpdateTime: now,
	}
	header := Header{
		Type:    EntryTypeSession,
		Version: currentVersion,
		App:     app,
		User:    user,
		ID:      id,
		State:   s.State,
		Created: now.Format(time.RFC3339Nano),
	}
	w := bufio.NewWriter(fh)
	if err := writeLine(w, header); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, errors.Wrap(err, "session: flush header")
	}
	return s.clone(true), nil
}

func (f *FileService) Get(_ context.Context, app, user, id string) (*Session, error) {
	if err := validKey(app, user, id); err != nil {
		return nil, ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return readSession(f.path(app, user, id), true)
}

func (f *FileService) List(_ context.Context, app, user string) ([]*Session, error) {
	if err := validKey(app, user); err != nil {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Join(f.dir, app, user)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "session list")
	}

	var out []*Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		s, err := readSession(filepath.Join(dir, e.Name()), false)
		if err != nil {
			continue // skip malformed files
		}
		out = append(out, s)
	}
	sortNewest(out)
	return out, nil
}

func (f *FileService) Delete(_ context.Context, app, user, id string) error {
	if err := validKey(app, user, id); err != nil {
		return ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(app, user, id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errors.Wrap(err, "session: delete")
	}
	return nil
}

func (f *FileService) Append(_ context.Context, app, user, id string, msgs ...ai.Message) error {
	now := time.Now().UTC()
	lines := make([]any, 0, len(msgs))
	for _, m := range msgs {
		raw, err := MarshalMessage(m)
		if err != nil {
			return errors.Wrap(err, "session: marshal message")
		}
		lines = append(lines, newMessageEntry(string(m.GetRole()), raw, now))
	}
	return f.appendLines(app, user, id, lines)
}

func (f *FileService) UpdateState(_ context.Context, app, user, id string, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}
	entry := StateEntry{
		Type:      EntryTypeState,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Delta:     delta,
	}
	return f.appendLines(app, user, id, []any{entry})
}

func (f *FileService) appendLines(app, user, id string, lines []any) error {
	if err := validKey(app, user, id); err != nil {
		return ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(app, user, id)
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "session: open %s for append", path)
	}
	defer fh.Close()

	w := bufio.NewWriter(fh)
	for _, l := range lines {
		if err := writeLine(w, l); err != nil {
			return err
		}
	}
	return errors.Wrap(w.Flush(), "session: flush")
}

// readSession replays a session file. Unparseable lines are skipped so a
// torn final write does not lose the whole session.
func readSession(path string, withMessages bool) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "session: read %s", path)
	}

	var (
		s    *Session
		last string
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		typ, raw, err := ParseLine(line)
		if err != nil {
			continue
		}
		switch typ {
		case EntryTypeSession:
			var h Header
			if err := json.Unmarshal(raw, &h); err != nil {
				return nil, errors.Wrapf(err, "session: header of %s", path)
			}
			created, _ := time.Parse(time.RFC3339Nano, h.Created)
			s = &Session{
				ID:             h.ID,
				AppName:        h.App,
				UserID:         h.User,
				State:          mergeState(nil, h.State),
				Created:        created,
				LastUpdateTime: created,
			}
		case EntryTypeMessage:
			if s == nil {
				continue
			}
			var e MessageEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				continue
			}
			last = e.Timestamp
			if !withMessages {
				continue
			}
			msg, err := UnmarshalMessage(e.Role, e.Message)
			if err != nil {
				continue
			}
			s.Messages = append(s.Messages, msg)
		case EntryTypeState:
			if s == nil {
				continue
			}
			var e StateEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				continue
			}
			last = e.Timestamp
			s.State = mergeState(s.State, e.Delta)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "session: scan %s", path)
	}
	if s == nil {
		return nil, errors.Errorf("session: %s has no header", path)
	}
	if ts, err := time.Parse(time.RFC3339Nano, last); err == nil {
		s.LastUpdateTime = ts
	}
	return s, nil
}

func writeLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "session: marshal entry")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "session: write")
	}
	if err := w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "session: write newline")
	}
	return nil
}
