package models_test

import (
	"math"
	"testing"

	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/models"
)

func TestLookup_ExactMatch(t *testing.T) {
	cases := []struct {
		id      string
		wantCtx int
	}{
		{"gpt-4o", 128000},
		{"gemini-2.0-flash", 1048576},
		{"us.anthropic.claude-3-5-sonnet-20241022-v2:0", 200000},
	}
	for _, tc := range cases {
		info, ok := models.Lookup(tc.id)
		if !ok {
			t.Errorf("Lookup(%q) not found", tc.id)
			continue
		}
		if info.ContextWindow != tc.wantCtx {
			t.Errorf("Lookup(%q).ContextWindow = %d, want %d", tc.id, info.ContextWindow, tc.wantCtx)
		}
	}
}

func TestLookup_LongestPrefixWins(t *testing.T) {
	info, ok := models.Lookup("gemini-2.0-flash-exp-0827")
	if !ok {
		t.Fatal("versioned id not found")
	}
	if info.ID != "gemini-2.0-flash-exp" {
		t.Errorf("ID = %q, want gemini-2.0-flash-exp", info.ID)
	}
}

func TestLookup_Unknown(t *testing.T) {
	if _, ok := models.Lookup("totally-unknown"); ok {
		t.Error("unknown model should not be found")
	}
}

func TestCostOf(t *testing.T) {
	c := models.CostOf("gpt-4o", ai.Usage{Input: 1_000_000, Output: 500_000})
	if math.Abs(c.Input-2.5) > 1e-9 || math.Abs(c.Output-5) > 1e-9 {
		t.Errorf("cost = %+v, want input 2.5 output 5", c)
	}
	if math.Abs(c.Total-7.5) > 1e-9 {
		t.Errorf("total = %v, want 7.5", c.Total)
	}
	if z := models.CostOf("nope", ai.Usage{Input: 10}); z.Total != 0 {
		t.Errorf("unknown model cost = %v, want 0", z.Total)
	}
}

func TestDefaultFor(t *testing.T) {
	if got := models.DefaultFor("google"); got != "gemini-2.0-flash" {
		t.Errorf("DefaultFor(google) = %q", got)
	}
	if got := models.DefaultFor("openai"); got != "gpt-4o-mini" {
		t.Errorf("DefaultFor(openai) = %q", got)
	}
}
