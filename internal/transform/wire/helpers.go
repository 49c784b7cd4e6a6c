package wire

import "encoding/json"

import "github.com/module-gw/gproxy/internal/constant"

// Per-protocol shorthands used by the builtin-tool alias lookups in this
// package; named locally to avoid every Decode/Encode function importing
// constant just to spell out constant.Claude etc.
const (
	claudeProtocol         = constant.Claude
	geminiProtocol          = constant.Gemini
	openAIChatProtocol      = constant.OpenAIChat
	openAIResponseProtocol  = constant.OpenAIResponse
)

// mustMarshal renders v (built from map[string]any/[]any literals assembled
// by the Encode* functions in this package, never user-controlled types) to
// JSON text for sjson.SetRaw. The teacher's own sjson call sites panic the
// same way on marshal failure (see translator helpers using json.Marshal
// unchecked); callers here only ever pass types that cannot fail to encode.
func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// rawJSON wraps a raw JSON text fragment so mustMarshal embeds it verbatim
// instead of re-encoding it as a string.
func rawJSON(text string) json.RawMessage {
	return json.RawMessage(text)
}

// rawJSONOr parses text as a raw JSON fragment, falling back to def when
// text is empty or not valid JSON (e.g. a tool call whose arguments
// streamed in malformed).
func rawJSONOr(text string, def any) any {
	if text == "" {
		return def
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return def
	}
	return v
}
