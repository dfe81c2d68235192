package sse_test

import (
	"strings"
	"testing"

	"github.com/bitop-dev/shopagent/pkg/ai/sse"
)

func events(t *testing.T, input string) []sse.Event {
	t.Helper()
	evs, err := sse.ReadAll(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return evs
}

func TestReader_SingleEvent(t *testing.T) {
	evs := events(t, "data: hello\n\n")
	if len(evs) != 1 {
		t.Fatalf("want 1 event, got %d", len(evs))
	}
	if evs[0].Data != "hello" {
		t.Errorf("data = %q, want %q", evs[0].Data, "hello")
	}
}

func TestReader_EventWithTypeAndID(t *testing.T) {
	evs := events(t, "id: 7\nevent: ping\ndata: pong\n\n")
	if len(evs) != 1 {
		t.Fatalf("want 1 event, got %d", len(evs))
	}
	if evs[0].Type != "ping" || evs[0].ID != "7" {
		t.Errorf("type/id = %q/%q, want ping/7", evs[0].Type, evs[0].ID)
	}
	if evs[0].Data != "pong" {
		t.Errorf("data = %q, want %q", evs[0].Data, "pong")
	}
}

func TestReader_MultipleEvents(t *testing.T) {
	evs := events(t, "data: one\n\ndata: two\n\ndata: three\n\n")
	want := []string{"one", "two", "three"}
	if len(evs) != len(want) {
		t.Fatalf("want %d events, got %d", len(want), len(evs))
	}
	for i, w := range want {
		if evs[i].Data != w {
			t.Errorf("event[%d].Data = %q, want %q", i, evs[i].Data, w)
		}
	}
}

func TestReader_SkipsComments(t *testing.T) {
	evs := events(t, ": keep-alive\ndata: real\n\n")
	if len(evs) != 1 || evs[0].Data != "real" {
		t.Fatalf("got %+v, want one event with data real", evs)
	}
}

func TestReader_MultilineData(t *testing.T) {
	evs := events(t, "data: line1\ndata: line2\n\n")
	if len(evs) != 1 {
		t.Fatalf("want 1 event, got %d", len(evs))
	}
	if evs[0].Data != "line1\nline2" {
		t.Errorf("data = %q, want %q", evs[0].Data, "line1\nline2")
	}
}

func TestReader_NoSpaceAfterColon(t *testing.T) {
	evs := events(t, "data:{\"a\":1}\n\n")
	if len(evs) != 1 || evs[0].Data != `{"a":1}` {
		t.Fatalf("got %+v", evs)
	}
}

func TestReader_CRLF(t *testing.T) {
	evs := events(t, "data: one\r\n\r\ndata: two\r\n\r\n")
	if len(evs) != 2 || evs[1].Data != "two" {
		t.Fatalf("got %+v", evs)
	}
}

func TestReader_TrailingEventWithoutBlankLine(t *testing.T) {
	evs := events(t, "data: one\n\ndata: last")
	if len(evs) != 2 {
		t.Fatalf("want 2 events, got %d", len(evs))
	}
	if evs[1].Data != "last" {
		t.Errorf("data = %q, want last", evs[1].Data)
	}
}

func TestReader_EmptyStream(t *testing.T) {
	if evs := events(t, ""); len(evs) != 0 {
		t.Errorf("want 0 events on empty stream, got %d", len(evs))
	}
}
