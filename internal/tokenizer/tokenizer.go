// Package tokenizer provides a local token-count estimate for protocols
// that expose no upstream count-tokens endpoint (OpenAI Chat Completions
// and Responses have none; Claude and Gemini's count_tokens operations are
// forwarded upstream instead, see internal/transform/counttokens).
//
// Grounded on the tiktoken-go usage in the example pack's one-api-style
// gateways (github.com/pkoukk/tiktoken-go, as imported by Laisky-one-api
// and rakunlabs-at's go.mod) rather than a hand-rolled byte/word heuristic.
package tokenizer

import (
	"sync"

	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "o200k_base"

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
	encErr   error
)

func encoder() (*tiktoken.Tiktoken, error) {
	once.Do(func() {
		encoding, encErr = tiktoken.GetEncoding(defaultEncoding)
	})
	return encoding, encErr
}

// CountText returns the token count of s, or a 4-bytes-per-token estimate
// if the encoder tables failed to load.
func CountText(s string) int64 {
	enc, err := encoder()
	if err != nil {
		return int64(len(s)+3) / 4
	}
	return int64(len(enc.Encode(s, nil, nil)))
}

// CountRequest estimates the input token count of an IR request, summing
// text content across system, messages, and tool definitions. This is an
// estimate: it does not reproduce a provider's exact prompt-formatting
// token overhead, only a stable, monotonic approximation good enough for
// client-side budget checks.
func CountRequest(r wire.Request) int64 {
	var total int64
	if r.System != "" {
		total += CountText(r.System)
	}
	for _, m := range r.Messages {
		for _, p := range m.Parts {
			switch p.Kind {
			case wire.PartText, wire.PartThinking:
				total += CountText(p.Text)
			case wire.PartToolUse:
				total += CountText(p.ToolName) + CountText(p.ToolArgsJSON)
			case wire.PartToolResult:
				total += CountText(p.ToolResultText)
			case wire.PartImage:
				total += 85 // fixed low-detail image estimate, per OpenAI's published floor
			}
		}
		total += 4 // per-message role/wrapper overhead, rough
	}
	for _, t := range r.Tools {
		total += CountText(t.Name) + CountText(t.Description) + CountText(t.ParametersRaw)
	}
	return total
}
