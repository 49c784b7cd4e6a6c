package stream

import (
	"strings"

	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Gemini's generateContent streaming format has no open/close framing:
// every chunk is itself a complete (partial) GenerateContentResponse, and
// function calls arrive whole rather than as argument deltas. These fixed
// index slots let the decoder/encoder agree on a stable Index per content
// kind despite Gemini never naming one itself.
const (
	geminiTextIndex     = 0
	geminiThinkingIndex = 1
	geminiToolIndexBase = 2
)

// GeminiDecoder decodes Gemini generateContent streaming SSE frames into
// neutral events.
type GeminiDecoder struct {
	toolIndex  map[string]int64 // functionCall name -> allocated Index
	nextTool   int64
	startSent  bool
}

func NewGeminiDecoder() *GeminiDecoder {
	return &GeminiDecoder{toolIndex: map[string]int64{}, nextTool: geminiToolIndexBase}
}

func (d *GeminiDecoder) Decode(raw []byte) []Event {
	raw = stripDataPrefix(raw)
	if len(raw) == 0 {
		return nil
	}
	root := gjson.ParseBytes(raw)
	var out []Event
	if !d.startSent {
		d.startSent = true
		out = append(out, Event{Kind: EvMessageStart, Model: root.Get("modelVersion").String()})
	}
	cand := root.Get("candidates.0")
	cand.Get("content.parts").ForEach(func(_, p gjson.Result) bool {
		switch {
		case p.Get("text").Exists():
			if p.Get("thought").Bool() {
				out = append(out, Event{Kind: EvThinkingDelta, Index: geminiThinkingIndex, Text: p.Get("text").String()})
			} else {
				out = append(out, Event{Kind: EvTextDelta, Index: geminiTextIndex, Text: p.Get("text").String()})
			}
		case p.Get("functionCall").Exists():
			name := p.Get("functionCall.name").String()
			idx, ok := d.toolIndex[name]
			if !ok {
				idx = d.nextTool
				d.nextTool++
				d.toolIndex[name] = idx
			}
			out = append(out,
				Event{Kind: EvToolStart, Index: int(idx), ToolID: name, ToolName: name},
				Event{Kind: EvToolDelta, Index: int(idx), PartialJSON: p.Get("functionCall.args").Raw},
				Event{Kind: EvToolStop, Index: int(idx)},
			)
		}
		return true
	})
	if finish := cand.Get("finishReason"); finish.Exists() {
		ev := Event{Kind: EvMessageStop, StopReason: decodeGeminiFinish(finish.String())}
		ev.Usage = decodeGeminiStreamUsage(root.Get("usageMetadata"))
		out = append(out, ev)
	}
	return out
}

func decodeGeminiFinish(s string) wire.StopReason {
	switch s {
	case "MAX_TOKENS":
		return wire.StopMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return wire.StopContentFilter
	default:
		return wire.StopEndTurn
	}
}

func decodeGeminiStreamUsage(u gjson.Result) wire.Usage {
	var out wire.Usage
	if v := u.Get("promptTokenCount"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("candidatesTokenCount"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	return out
}

// GeminiEncoder renders neutral events into Gemini generateContent
// streaming chunks. Function calls are buffered until EvToolStop since
// Gemini has no incremental tool-call-argument format.
type GeminiEncoder struct {
	pendingTool map[int]*pendingCall
	finalUsage  wire.Usage
	haveStop    bool
	stopReason  wire.StopReason
}

type pendingCall struct {
	name string
	args strings.Builder
}

func NewGeminiEncoder() *GeminiEncoder {
	return &GeminiEncoder{pendingTool: map[int]*pendingCall{}}
}

func geminiChunk(partsJSON, finishReason string) Chunk {
	out := `{"candidates":[{"content":{"role":"model","parts":[]},"index":0}]}`
	out, _ = sjson.SetRaw(out, "candidates.0.content.parts", partsJSON)
	if finishReason != "" {
		out, _ = sjson.Set(out, "candidates.0.finishReason", finishReason)
	}
	return Chunk{Data: out}
}

func (e *GeminiEncoder) Encode(ev Event) []Chunk {
	switch ev.Kind {
	case EvTextDelta:
		return []Chunk{geminiChunk(mustMarshalParts(map[string]any{"text": ev.Text}), "")}
	case EvThinkingDelta:
		return []Chunk{geminiChunk(mustMarshalParts(map[string]any{"text": ev.Text, "thought": true}), "")}
	case EvToolStart:
		e.pendingTool[ev.Index] = &pendingCall{name: ev.ToolName}
		return nil
	case EvToolDelta:
		if pc := e.pendingTool[ev.Index]; pc != nil {
			pc.args.WriteString(ev.PartialJSON)
		}
		return nil
	case EvToolStop:
		pc := e.pendingTool[ev.Index]
		if pc == nil {
			return nil
		}
		delete(e.pendingTool, ev.Index)
		args := pc.args.String()
		if args == "" {
			args = "{}"
		}
		partsJSON, _ := sjson.SetRaw(`[{}]`, "0.functionCall", `{"name":"","args":{}}`)
		partsJSON, _ = sjson.Set(partsJSON, "0.functionCall.name", pc.name)
		partsJSON, _ = sjson.SetRaw(partsJSON, "0.functionCall.args", args)
		return []Chunk{geminiChunk(partsJSON, "")}
	case EvMessageStop:
		e.haveStop = true
		e.stopReason = ev.StopReason
		e.finalUsage = ev.Usage
		finish := "STOP"
		switch ev.StopReason {
		case wire.StopMaxTokens:
			finish = "MAX_TOKENS"
		case wire.StopContentFilter:
			finish = "SAFETY"
		}
		c := geminiChunk("[]", finish)
		if e.finalUsage.InputTokens != nil {
			c.Data, _ = sjson.Set(c.Data, "usageMetadata.promptTokenCount", *e.finalUsage.InputTokens)
		}
		if e.finalUsage.OutputTokens != nil {
			c.Data, _ = sjson.Set(c.Data, "usageMetadata.candidatesTokenCount", *e.finalUsage.OutputTokens)
		}
		return []Chunk{c}
	}
	return nil
}

func (e *GeminiEncoder) Finalize() []Chunk { return nil }

func mustMarshalParts(part map[string]any) string {
	out := `[{}]`
	for k, v := range part {
		switch val := v.(type) {
		case string:
			out, _ = sjson.Set(out, "0."+k, val)
		case bool:
			out, _ = sjson.Set(out, "0."+k, val)
		}
	}
	return out
}
