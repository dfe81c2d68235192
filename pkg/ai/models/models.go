// Package models holds static metadata for the models the shop agent can be
// pointed at: context windows, output limits and per-token prices used to log
// the cost of each agent turn.
package models

import (
	"strings"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// ModelInfo holds static metadata for a known model.
type ModelInfo struct {
	ID              string
	Provider        string // "google", "openai", "bedrock"
	DisplayName     string
	ContextWindow   int
	MaxOutputTokens int

	// Prices in USD per one million tokens.
	InputCostPer1M     float64
	OutputCostPer1M    float64
	CacheReadCostPer1M float64
}

// Cost is the USD cost of one model call.
type Cost struct {
	Input  float64
	Output float64
	Total  float64
}

var registry = map[string]ModelInfo{}

func init() {
	for _, m := range known {
		registry[m.ID] = m
	}
}

// Lookup returns the info for id. Exact matches win; otherwise the longest
// registered ID that prefixes id (e.g. "gemini-2.0-flash-001") is used.
func Lookup(id string) (ModelInfo, bool) {
	if m, ok := registry[id]; ok {
		return m, true
	}
	id = strings.ToLower(id)
	var best ModelInfo
	found := false
	for k, m := range registry {
		if strings.HasPrefix(id, strings.ToLower(k)) && len(k) > len(best.ID) {
			best, found = m, true
		}
	}
	return best, found
}

// DefaultFor returns the default model ID for a provider name.
func DefaultFor(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "bedrock":
		return "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	default:
		return "gemini-2.0-flash"
	}
}

// CostOf prices usage for model. Unknown models cost zero.
func CostOf(model string, u ai.Usage) Cost {
	info, ok := Lookup(model)
	if !ok {
		return Cost{}
	}
	in := float64(u.Input)*info.InputCostPer1M/1_000_000 +
		float64(u.CacheRead)*info.CacheReadCostPer1M/1_000_000
	out := float64(u.Output) * info.OutputCostPer1M / 1_000_000
	return Cost{Input: in, Output: out, Total: in + out}
}

var known = []ModelInfo{
	// Google Gemini
	{ID: "gemini-2.5-pro", Provider: "google", DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutputTokens: 65536, InputCostPer1M: 1.25, OutputCostPer1M: 10},
	{ID: "gemini-2.5-flash", Provider: "google", DisplayName: "Gemini 2.5 Flash",
		ContextWindow: 1048576, MaxOutputTokens: 65536, InputCostPer1M: 0.15, OutputCostPer1M: 0.6},
	{ID: "gemini-2.0-flash", Provider: "google", DisplayName: "Gemini 2.0 Flash",
		ContextWindow: 1048576, MaxOutputTokens: 8192, InputCostPer1M: 0.1, OutputCostPer1M: 0.4},
	{ID: "gemini-2.0-flash-exp", Provider: "google", DisplayName: "Gemini 2.0 Flash (experimental)",
		ContextWindow: 1048576, MaxOutputTokens: 8192},
	{ID: "gemini-1.5-flash", Provider: "google", DisplayName: "Gemini 1.5 Flash",
		ContextWindow: 1048576, MaxOutputTokens: 8192, InputCostPer1M: 0.075, OutputCostPer1M: 0.3},

	// OpenAI
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutputTokens: 16384, InputCostPer1M: 2.5, OutputCostPer1M: 10, CacheReadCostPer1M: 1.25},
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini",
		ContextWindow: 128000, MaxOutputTokens: 16384, InputCostPer1M: 0.15, OutputCostPer1M: 0.6, CacheReadCostPer1M: 0.075},
	{ID: "gpt-4.1-mini", Provider: "openai", DisplayName: "GPT-4.1 Mini",
		ContextWindow: 1047576, MaxOutputTokens: 32768, InputCostPer1M: 0.4, OutputCostPer1M: 1.6, CacheReadCostPer1M: 0.1},

	// Bedrock
	{ID: "us.anthropic.claude-3-5-sonnet-20241022-v2:0", Provider: "bedrock", DisplayName: "Claude 3.5 Sonnet (Bedrock)",
		ContextWindow: 200000, MaxOutputTokens: 8192, InputCostPer1M: 3, OutputCostPer1M: 15},
	{ID: "us.anthropic.claude-3-5-haiku-20241022-v1:0", Provider: "bedrock", DisplayName: "Claude 3.5 Haiku (Bedrock)",
		ContextWindow: 200000, MaxOutputTokens: 8192, InputCostPer1M: 0.8, OutputCostPer1M: 4},
}
