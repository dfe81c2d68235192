package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const currentVersion = 1

// EntryType identifies the kind of JSONL line.
type EntryType string

const (
	EntryTypeSession EntryType = "session"
	EntryTypeMessage EntryType = "message"
	EntryTypeState   EntryType = "state"
)

// Header is the first line of every session file.
type Header struct {
	Type    EntryType      `json:"type"`
	Version int            `json:"version"`
	App     string         `json:"app"`
	User    string         `json:"user"`
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	Created string         `json:"created"` // RFC 3339
}

// MessageEntry records one complete message.
type MessageEntry struct {
	Type      EntryType       `json:"type"`
	ID        string          `json:"id"` // 8 hex chars
	Timestamp string          `json:"timestamp"`
	Role      string          `json:"role"`
	Message   json.RawMessage `json:"message"`
}

func newMessageEntry(role string, msg json.RawMessage, now time.Time) MessageEntry {
	return MessageEntry{
		Type:      EntryTypeMessage,
		ID:        newEntryID(),
		Timestamp: now.Format(time.RFC3339Nano),
		Role:      role,
		Message:   msg,
	}
}

// StateEntry records a state delta applied after creation.
type StateEntry struct {
	Type      EntryType      `json:"type"`
	Timestamp string         `json:"timestamp"`
	Delta     map[string]any `json:"delta"`
}

// ParseLine peeks at the "type" field of a JSONL line.
func ParseLine(line []byte) (EntryType, json.RawMessage, error) {
	var head struct {
		Type EntryType `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return "", nil, errors.Wrap(err, "parse entry type")
	}
	return head.Type, json.RawMessage(line), nil
}

func newEntryID() string {
	return uuid.New().String()[:8]
}
