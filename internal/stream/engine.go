package stream

import "github.com/module-gw/gproxy/internal/constant"

func newDecoder(p constant.Protocol) Decoder {
	switch p {
	case constant.Claude:
		return NewClaudeDecoder()
	case constant.Gemini:
		return NewGeminiDecoder()
	case constant.OpenAIChat:
		return NewOpenAIChatDecoder()
	case constant.OpenAIResponse:
		return NewOpenAIResponsesDecoder()
	default:
		return nil
	}
}

func newEncoder(p constant.Protocol) Encoder {
	switch p {
	case constant.Claude:
		return NewClaudeEncoder()
	case constant.Gemini:
		return NewGeminiEncoder()
	case constant.OpenAIChat:
		return NewOpenAIChatEncoder()
	case constant.OpenAIResponse:
		return NewOpenAIResponsesEncoder()
	default:
		return nil
	}
}

// Translator is one directed (source, target) streaming translation,
// single-owner and stateful for the lifetime of one upstream request. It is
// never safe to share across requests or goroutines, matching the
// teacher's per-call *any state pointer threaded through
// ConvertCodexResponseToClaude by the caller.
type Translator struct {
	decode Decoder
	encode Encoder
}

// New builds a Translator for one streaming request. source and target may
// be equal, in which case Push still normalizes SSE framing through the
// neutral Event form but values pass through unchanged in practice.
func New(source, target constant.Protocol) *Translator {
	return &Translator{decode: newDecoder(source), encode: newEncoder(target)}
}

// Push decodes one upstream SSE data line and returns the downstream
// frames it produces, in order. Most upstream lines produce zero frames
// (e.g. a Gemini chunk carrying only usage metadata) or exactly one;
// function-call events can produce several.
func (t *Translator) Push(raw []byte) []Chunk {
	var out []Chunk
	for _, ev := range t.decode.Decode(raw) {
		out = append(out, t.encode.Encode(ev)...)
	}
	return out
}

// Close flushes any frames the encoder owes at stream end (e.g. a content
// block the source protocol never explicitly closed) and must be called
// exactly once after the upstream body is exhausted.
func (t *Translator) Close() []Chunk {
	return t.encode.Finalize()
}
