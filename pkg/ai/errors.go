package ai

import "regexp"

// overflowPatterns match the context-window errors of the providers the shop
// agent supports.
var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)input is too long for requested model`),  // Bedrock
	regexp.MustCompile(`(?i)exceed.*context window`),                 // OpenAI
	regexp.MustCompile(`(?i)maximum context length is \d+ tokens`),   // OpenAI-compatible
	regexp.MustCompile(`(?i)input token count.*exceeds the maximum`), // Gemini
	regexp.MustCompile(`(?i)context[_ ]length[_ ]exceeded`),
	regexp.MustCompile(`(?i)too many tokens`),
}

// transientPatterns match errors worth retrying: rate limits, overloaded
// backends and dropped connections.
var transientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(429|500|502|503|504)\b`),
	regexp.MustCompile(`(?i)rate.?limit`),
	regexp.MustCompile(`(?i)resource.?exhausted`),
	regexp.MustCompile(`(?i)throttl`),
	regexp.MustCompile(`(?i)overloaded|unavailable`),
	regexp.MustCompile(`(?i)connection (reset|refused)|EOF|timeout`),
}

// IsContextOverflow reports whether msg failed because the conversation no
// longer fits the model's context window.
func IsContextOverflow(msg *AssistantMessage) bool {
	if msg == nil || msg.StopReason != StopReasonError || msg.ErrorMessage == "" {
		return false
	}
	return matchAny(overflowPatterns, msg.ErrorMessage)
}

// IsRetryable reports whether msg is an error turn caused by a transient
// provider failure. Context overflows are never retryable.
func IsRetryable(msg *AssistantMessage) bool {
	if msg == nil || msg.StopReason != StopReasonError || msg.ErrorMessage == "" {
		return false
	}
	if IsContextOverflow(msg) {
		return false
	}
	return matchAny(transientPatterns, msg.ErrorMessage)
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
