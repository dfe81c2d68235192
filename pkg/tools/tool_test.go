package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/tools"
)

func TestFunc_EncodesResultAsJSON(t *testing.T) {
	f := tools.NewFunc("send_training_tips", "tips", tools.SimpleSchema{
		Properties: map[string]tools.Property{"sport": {Type: "string"}},
		Required:   []string{"sport"},
	}, func(_ context.Context, a tools.Args) (any, error) {
		return map[string]any{"status": "success", "sport": a.String("sport")}, nil
	})

	def := f.Definition()
	var schema map[string]any
	if err := json.Unmarshal(def.Parameters, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}

	res, err := f.Execute(context.Background(), "c1", map[string]any{"sport": "Running"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	text := ai.JoinText(res.Content)
	if text != `{"sport":"Running","status":"success"}` {
		t.Errorf("text = %s", text)
	}
	if d, ok := res.Details.(map[string]any); !ok || d["sport"] != "Running" {
		t.Errorf("details = %#v", res.Details)
	}
}

func TestFunc_StringResultIsPassedThrough(t *testing.T) {
	f := tools.NewFunc("approve_discount", "", tools.SimpleSchema{},
		func(context.Context, tools.Args) (any, error) { return `{"status": "ok"}`, nil })
	res, err := f.Execute(context.Background(), "c1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ai.JoinText(res.Content); got != `{"status": "ok"}` {
		t.Errorf("text = %q", got)
	}
}

func TestFunc_PropagatesError(t *testing.T) {
	f := tools.NewFunc("broken", "", tools.SimpleSchema{},
		func(context.Context, tools.Args) (any, error) { return nil, errors.New("boom") })
	if _, err := f.Execute(context.Background(), "c1", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestErrorResult(t *testing.T) {
	res := tools.ErrorResult(errors.New("store offline"))
	if got := ai.JoinText(res.Content); got != "error: store offline" {
		t.Errorf("text = %q", got)
	}
	d := res.Details.(map[string]any)
	if d["status"] != "error" {
		t.Errorf("details status = %v", d["status"])
	}
}

func TestArgs_LenientGetters(t *testing.T) {
	a := tools.Args{
		"value":   "15",
		"days":    float64(30),
		"id":      float64(123),
		"details": `{"items":[]}`,
		"items":   map[string]any{"product_id": "TNB-003"},
	}
	if got := a.Float("value", 0); got != 15 {
		t.Errorf("Float(value) = %v, want 15", got)
	}
	if got := a.Int("days", 0); got != 30 {
		t.Errorf("Int(days) = %v, want 30", got)
	}
	if got := a.Int("missing", 7); got != 7 {
		t.Errorf("Int(missing) = %v, want 7", got)
	}
	if got := a.String("id"); got != "123" {
		t.Errorf("String(id) = %q, want 123", got)
	}
	if m := a.Object("details"); m == nil {
		t.Error("Object(details) = nil, want decoded object")
	}
	if objs := a.Objects("items"); len(objs) != 1 || objs[0]["product_id"] != "TNB-003" {
		t.Errorf("Objects(items) = %v", objs)
	}
}
