// Package counttokens wires the FamilyCountTokens transform pairs. Claude
// and Gemini both expose a native count_tokens endpoint upstream, so a
// transform here only needs to re-encode the request body (the response is
// a single integer field, trivial to re-map without the full wire IR).
// OpenAI Chat Completions and Responses have no such endpoint upstream;
// requests routed at them fall back to the local tokenizer package instead
// of a provider round trip, so no transform pair targets them here.
package counttokens

import (
	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/tokenizer"
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const variant = "count-tokens-ir"

func init() {
	dispatch.RegisterPair(dispatch.FamilyCountTokens, constant.Claude, constant.Gemini, variant)
	dispatch.RegisterPair(dispatch.FamilyCountTokens, constant.Gemini, constant.Claude, variant)
}

// TransformRequest re-encodes a count_tokens request body from source to
// target, the same request-side IR used for FamilyGenerateContent.
func TransformRequest(source, target constant.Protocol, raw []byte, model string) []byte {
	var req wire.Request
	switch source {
	case constant.Claude:
		req = wire.DecodeClaudeRequest(raw)
	case constant.Gemini:
		req = wire.DecodeGeminiRequest(raw, model)
	}
	switch target {
	case constant.Claude:
		return wire.EncodeClaudeRequest(req)
	case constant.Gemini:
		return wire.EncodeGeminiRequest(req)
	}
	return raw
}

// TransformResponse re-maps a count_tokens response's single token-count
// field between Claude's {"input_tokens": n} and Gemini's
// {"totalTokens": n} shapes.
func TransformResponse(source, target constant.Protocol, raw []byte) []byte {
	var count int64
	switch source {
	case constant.Claude:
		count = gjson.GetBytes(raw, "input_tokens").Int()
	case constant.Gemini:
		count = gjson.GetBytes(raw, "totalTokens").Int()
	}
	switch target {
	case constant.Claude:
		out, _ := sjson.Set(`{}`, "input_tokens", count)
		return []byte(out)
	case constant.Gemini:
		out, _ := sjson.Set(`{}`, "totalTokens", count)
		return []byte(out)
	}
	return raw
}

// LocalCount estimates a count_tokens response locally for a protocol with
// no upstream count endpoint, returning the response body shaped for
// reportAs (Claude's input_tokens or Gemini's totalTokens convention,
// whichever the inbound surface expects).
func LocalCount(raw []byte, source constant.Protocol, model string, reportAs constant.Protocol) []byte {
	var req wire.Request
	switch source {
	case constant.Claude:
		req = wire.DecodeClaudeRequest(raw)
	case constant.Gemini:
		req = wire.DecodeGeminiRequest(raw, model)
	case constant.OpenAIChat:
		req = wire.DecodeOpenAIChatRequest(raw)
	case constant.OpenAIResponse:
		req = wire.DecodeOpenAIResponsesRequest(raw)
	}
	count := tokenizer.CountRequest(req)
	switch reportAs {
	case constant.Gemini:
		out, _ := sjson.Set(`{}`, "totalTokens", count)
		return []byte(out)
	default:
		out, _ := sjson.Set(`{}`, "input_tokens", count)
		return []byte(out)
	}
}
