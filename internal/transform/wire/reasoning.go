package wire

import "github.com/module-gw/gproxy/internal/constant"

// ReasoningTarget is the per-target encoding of one reasoning effort level,
// table-driven per spec §4.2.2.
type ReasoningTarget struct {
	// OpenAIResponsesEffort / OpenAIChatEffort are the "reasoning_effort"
	// string values, "" meaning the field should be omitted.
	OpenAIResponsesEffort string
	OpenAIChatEffort      string
	// GeminiThinkingLevel is "Low"/"Medium"/"High"/"" (omitted = no thinking config).
	GeminiThinkingLevel string
	GeminiIncludeThoughts bool
	// ClaudeThinkingEnabled/Budget/Effort implement the Enabled{budget}/effort pair.
	ClaudeThinkingEnabled bool
	ClaudeThinkingBudget  int64
	ClaudeEffort          string
}

// reasoningTable implements the rows of spec §4.2.2 exactly.
var reasoningTable = map[string]ReasoningTarget{
	"": { // source has no thinking
		OpenAIResponsesEffort: "medium",
		OpenAIChatEffort:      "medium",
		GeminiThinkingLevel:   "",
		ClaudeThinkingEnabled: true,
		ClaudeThinkingBudget:  0,
	},
	"none": {
		OpenAIResponsesEffort: "none",
		OpenAIChatEffort:      "none",
		GeminiThinkingLevel:   "",
		GeminiIncludeThoughts: false,
		ClaudeThinkingEnabled: false,
	},
	"low": {
		OpenAIResponsesEffort: "low",
		OpenAIChatEffort:      "low",
		GeminiThinkingLevel:   "Low",
		GeminiIncludeThoughts: true,
		ClaudeThinkingEnabled: true,
		ClaudeThinkingBudget:  0,
		ClaudeEffort:          "low",
	},
	"medium": {
		OpenAIResponsesEffort: "medium",
		OpenAIChatEffort:      "medium",
		GeminiThinkingLevel:   "Medium",
		GeminiIncludeThoughts: true,
		ClaudeThinkingEnabled: true,
		ClaudeEffort:          "medium",
	},
	"high": {
		OpenAIResponsesEffort: "high",
		OpenAIChatEffort:      "high",
		GeminiThinkingLevel:   "High",
		GeminiIncludeThoughts: true,
		ClaudeThinkingEnabled: true,
		ClaudeEffort:          "high",
	},
	"xhigh": {
		OpenAIResponsesEffort: "xhigh",
		OpenAIChatEffort:      "xhigh",
		GeminiThinkingLevel:   "High", // clamped per spec
		GeminiIncludeThoughts: true,
		ClaudeThinkingEnabled: true,
		ClaudeEffort:          "max",
	},
}

// ResolveReasoning maps a Reasoning (possibly nil, meaning "source has no
// thinking") to its per-target encoding.
func ResolveReasoning(r *Reasoning) ReasoningTarget {
	effort := ""
	if r != nil {
		effort = r.Effort
	}
	if t, ok := reasoningTable[effort]; ok {
		return t
	}
	return reasoningTable[""]
}

// builtinAliases maps the protocol-neutral builtin tool name to its wire
// name per protocol, per spec §4.2.3. A missing entry for a given protocol
// means the builtin is dropped when encoding to that protocol.
var builtinAliases = map[string]map[constant.Protocol]string{
	"web_search": {
		constant.Claude:         "web_search",
		constant.OpenAIChat:     "web_search",
		constant.OpenAIResponse: "web_search_preview",
		constant.Gemini:         "google_search",
	},
	"code_execution": {
		constant.Claude:         "bash",
		constant.OpenAIChat:     "code_interpreter",
		constant.OpenAIResponse: "code_interpreter",
		constant.Gemini:         "code_execution",
	},
	"computer_use": {
		constant.Claude:         "computer_use",
		constant.OpenAIChat:     "computer_use_preview",
		constant.OpenAIResponse: "computer_use_preview",
		constant.Gemini:         "computer_use",
	},
	"text_editor": {
		constant.Claude:         "text_editor",
		constant.OpenAIChat:     "apply_patch",
		constant.OpenAIResponse: "apply_patch",
		// Gemini has no equivalent: dropped.
	},
	"file_search": {
		constant.Claude:         "tool_search_bm25",
		constant.OpenAIChat:     "file_search",
		constant.OpenAIResponse: "file_search",
		constant.Gemini:         "file_search",
	},
}

// EncodeBuiltinToolName returns the wire name for name on target, and
// false when the builtin has no representation there and must be
// silently dropped.
func EncodeBuiltinToolName(name string, target constant.Protocol) (string, bool) {
	names, ok := builtinAliases[name]
	if !ok {
		return "", false
	}
	wireName, ok := names[target]
	return wireName, ok
}

// DecodeBuiltinToolName reverses EncodeBuiltinToolName: given a wire-level
// builtin tool name observed on source, returns the protocol-neutral key.
func DecodeBuiltinToolName(wireName string, source constant.Protocol) (string, bool) {
	for neutral, names := range builtinAliases {
		if names[source] == wireName {
			return neutral, true
		}
	}
	return "", false
}
