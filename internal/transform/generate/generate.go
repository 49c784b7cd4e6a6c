// Package generate wires the protocol-neutral wire.Request/wire.Response IR
// into the twelve directed (source, target) pairs used by
// FamilyGenerateContent and FamilyStreamContent, registering each with
// dispatch.RegisterPair the same way the teacher's internal/translator
// packages self-register in init() (internal/translator/translator.go's
// Register call, invoked from every translator/<pair>/init.go).
package generate

import (
	"github.com/module-gw/gproxy/internal/constant"
	"github.com/module-gw/gproxy/internal/dispatch"
	"github.com/module-gw/gproxy/internal/transform/wire"
)

// requestCodec decodes/encodes one protocol's request body. Decode takes
// the model separately because Gemini's model travels in the URL path
// rather than the JSON body; every other protocol's Decode ignores it.
type requestCodec struct {
	Decode func(raw []byte, model string) wire.Request
	Encode func(wire.Request) []byte
}

type responseCodec struct {
	Decode func(raw []byte, model string) wire.Response
	Encode func(wire.Response) []byte
}

var requestCodecs = map[constant.Protocol]requestCodec{
	constant.Claude: {
		Decode: func(raw []byte, _ string) wire.Request { return wire.DecodeClaudeRequest(raw) },
		Encode: wire.EncodeClaudeRequest,
	},
	constant.Gemini: {
		Decode: wire.DecodeGeminiRequest,
		Encode: wire.EncodeGeminiRequest,
	},
	constant.OpenAIChat: {
		Decode: func(raw []byte, _ string) wire.Request { return wire.DecodeOpenAIChatRequest(raw) },
		Encode: wire.EncodeOpenAIChatRequest,
	},
	constant.OpenAIResponse: {
		Decode: func(raw []byte, _ string) wire.Request { return wire.DecodeOpenAIResponsesRequest(raw) },
		Encode: wire.EncodeOpenAIResponsesRequest,
	},
}

var responseCodecs = map[constant.Protocol]responseCodec{
	constant.Claude: {
		Decode: func(raw []byte, _ string) wire.Response { return wire.DecodeClaudeResponse(raw) },
		Encode: wire.EncodeClaudeResponse,
	},
	constant.Gemini: {
		Decode: wire.DecodeGeminiResponse,
		Encode: wire.EncodeGeminiResponse,
	},
	constant.OpenAIChat: {
		Decode: func(raw []byte, _ string) wire.Response { return wire.DecodeOpenAIChatResponse(raw) },
		Encode: wire.EncodeOpenAIChatResponse,
	},
	constant.OpenAIResponse: {
		Decode: func(raw []byte, _ string) wire.Response { return wire.DecodeOpenAIResponsesResponse(raw) },
		Encode: wire.EncodeOpenAIResponsesResponse,
	},
}

const variant = "ir-roundtrip"

func init() {
	protocols := []constant.Protocol{constant.Claude, constant.Gemini, constant.OpenAIChat, constant.OpenAIResponse}
	for _, source := range protocols {
		for _, target := range protocols {
			if source == target {
				continue
			}
			dispatch.RegisterPair(dispatch.FamilyGenerateContent, source, target, variant)
			dispatch.RegisterPair(dispatch.FamilyStreamContent, source, target, variant)
		}
	}
}

// TransformRequest decodes a request body authored in source and
// re-encodes it for target. model is the Gemini-only out-of-body model
// name; pass "" for every other source protocol.
func TransformRequest(source, target constant.Protocol, raw []byte, model string) []byte {
	req := requestCodecs[source].Decode(raw, model)
	if req.Model == "" {
		req.Model = model
	}
	return requestCodecs[target].Encode(req)
}

// TransformResponse decodes a response body authored in source and
// re-encodes it for target.
func TransformResponse(source, target constant.Protocol, raw []byte, model string) []byte {
	resp := responseCodecs[source].Decode(raw, model)
	if resp.Model == "" {
		resp.Model = model
	}
	return responseCodecs[target].Encode(resp)
}
