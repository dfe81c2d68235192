// Package sse reads and writes Server-Sent Events.
//
// The reader is used by the Gemini provider and by the shop client to decode
// /run_sse bodies. The writer frames agent events on the server side.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is a single SSE event.
type Event struct {
	ID   string // "id:" field
	Type string // "event:" field
	Data string // "data:" lines joined with "\n"
}

// Reader reads SSE events from an io.Reader.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 4<<20)
	return &Reader{scanner: sc}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
// A final event that is not followed by a blank line is still delivered.
func (r *Reader) Next() (Event, error) {
	if r.done {
		return Event{}, io.EOF
	}
	var ev Event
	var dataLines []string
	pending := false

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if pending {
				ev.Data = strings.Join(dataLines, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimSpace(value)
		switch field {
		case "event":
			ev.Type = value
			pending = true
		case "data":
			dataLines = append(dataLines, value)
			pending = true
		case "id":
			ev.ID = value
			pending = true
		}
		// retry: is ignored
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	if pending {
		ev.Data = strings.Join(dataLines, "\n")
		return ev, nil
	}
	return Event{}, io.EOF
}

// ReadAll drains r and returns every event.
func ReadAll(r io.Reader) ([]Event, error) {
	rd := NewReader(r)
	var out []Event
	for {
		ev, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
