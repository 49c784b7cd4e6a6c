package stream

import (
	"bytes"
	"fmt"

	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ClaudeDecoder decodes Anthropic Messages streaming SSE frames
// ("data: {...}") into neutral events.
type ClaudeDecoder struct {
	blockKind map[int64]string // index -> "text"|"thinking"|"tool_use", for EvContentStop translation
}

func NewClaudeDecoder() *ClaudeDecoder {
	return &ClaudeDecoder{blockKind: map[int64]string{}}
}

func (d *ClaudeDecoder) Decode(raw []byte) []Event {
	raw = stripDataPrefix(raw)
	if len(raw) == 0 {
		return nil
	}
	root := gjson.ParseBytes(raw)
	switch root.Get("type").String() {
	case "message_start":
		return []Event{{Kind: EvMessageStart, Model: root.Get("message.model").String(), ID: root.Get("message.id").String()}}
	case "content_block_start":
		idx := root.Get("index").Int()
		block := root.Get("content_block")
		kind := block.Get("type").String()
		d.blockKind[idx] = kind
		if kind == "tool_use" {
			return []Event{{Kind: EvToolStart, Index: int(idx), ToolID: block.Get("id").String(), ToolName: block.Get("name").String()}}
		}
		return nil
	case "content_block_delta":
		idx := root.Get("index").Int()
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			return []Event{{Kind: EvTextDelta, Index: int(idx), Text: delta.Get("text").String()}}
		case "thinking_delta":
			return []Event{{Kind: EvThinkingDelta, Index: int(idx), Text: delta.Get("thinking").String()}}
		case "input_json_delta":
			return []Event{{Kind: EvToolDelta, Index: int(idx), PartialJSON: delta.Get("partial_json").String()}}
		}
		return nil
	case "content_block_stop":
		idx := root.Get("index").Int()
		if d.blockKind[idx] == "tool_use" {
			return []Event{{Kind: EvToolStop, Index: int(idx)}}
		}
		return []Event{{Kind: EvContentStop, Index: int(idx)}}
	case "message_delta":
		ev := Event{Kind: EvMessageStop, StopReason: decodeClaudeStopReason(root.Get("delta.stop_reason").String())}
		ev.Usage = decodeClaudeUsage(root.Get("usage"))
		return []Event{ev}
	case "ping", "message_stop":
		return []Event{{Kind: EvPing}}
	}
	return nil
}

func decodeClaudeStopReason(s string) wire.StopReason {
	switch s {
	case "max_tokens":
		return wire.StopMaxTokens
	case "tool_use":
		return wire.StopToolUse
	case "refusal":
		return wire.StopContentFilter
	default:
		return wire.StopEndTurn
	}
}

func stripDataPrefix(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("data:")) {
		raw = bytes.TrimSpace(raw[len("data:"):])
	}
	if len(raw) == 0 || raw[0] == '[' && bytes.Equal(raw, []byte("[DONE]")) {
		return nil
	}
	return raw
}

// ClaudeEncoder renders neutral events into Anthropic Messages streaming
// SSE frames, opening/closing exactly one content_block per distinct index
// it observes.
type ClaudeEncoder struct {
	model      string
	messageID  string
	startSent  bool
	openBlocks map[int]bool
}

func NewClaudeEncoder() *ClaudeEncoder {
	return &ClaudeEncoder{openBlocks: map[int]bool{}}
}

func sseFrame(event, data string) Chunk {
	return Chunk{Event: event, Data: data}
}

func (e *ClaudeEncoder) ensureStart() []Chunk {
	if e.startSent {
		return nil
	}
	e.startSent = true
	tmpl := `{"type":"message_start","message":{"id":"","type":"message","role":"assistant","model":"","content":[],"stop_reason":null,"usage":{"input_tokens":0,"output_tokens":0}}}`
	tmpl, _ = sjson.Set(tmpl, "message.id", e.messageID)
	tmpl, _ = sjson.Set(tmpl, "message.model", e.model)
	return []Chunk{sseFrame("message_start", tmpl)}
}

func (e *ClaudeEncoder) Encode(ev Event) []Chunk {
	switch ev.Kind {
	case EvMessageStart:
		e.model, e.messageID = ev.Model, ev.ID
		return e.ensureStart()
	case EvTextDelta:
		var out []Chunk
		out = append(out, e.ensureStart()...)
		if !e.openBlocks[ev.Index] {
			e.openBlocks[ev.Index] = true
			out = append(out, sseFrame("content_block_start", fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, ev.Index)))
		}
		tmpl, _ := sjson.Set(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`, "index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "delta.text", ev.Text)
		return append(out, sseFrame("content_block_delta", tmpl))
	case EvThinkingDelta:
		var out []Chunk
		out = append(out, e.ensureStart()...)
		if !e.openBlocks[ev.Index] {
			e.openBlocks[ev.Index] = true
			out = append(out, sseFrame("content_block_start", fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"thinking","thinking":""}}`, ev.Index)))
		}
		tmpl, _ := sjson.Set(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":""}}`, "index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "delta.thinking", ev.Text)
		return append(out, sseFrame("content_block_delta", tmpl))
	case EvToolStart:
		var out []Chunk
		out = append(out, e.ensureStart()...)
		e.openBlocks[ev.Index] = true
		tmpl := `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"","name":"","input":{}}}`
		tmpl, _ = sjson.Set(tmpl, "index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "content_block.id", ev.ToolID)
		tmpl, _ = sjson.Set(tmpl, "content_block.name", ev.ToolName)
		return append(out, sseFrame("content_block_start", tmpl))
	case EvToolDelta:
		tmpl, _ := sjson.Set(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":""}}`, "index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "delta.partial_json", ev.PartialJSON)
		return []Chunk{sseFrame("content_block_delta", tmpl)}
	case EvToolStop, EvContentStop:
		if !e.openBlocks[ev.Index] {
			return nil
		}
		delete(e.openBlocks, ev.Index)
		tmpl, _ := sjson.Set(`{"type":"content_block_stop","index":0}`, "index", ev.Index)
		return []Chunk{sseFrame("content_block_stop", tmpl)}
	case EvMessageStop:
		stopReason := "end_turn"
		switch ev.StopReason {
		case wire.StopMaxTokens:
			stopReason = "max_tokens"
		case wire.StopToolUse:
			stopReason = "tool_use"
		case wire.StopContentFilter:
			stopReason = "refusal"
		}
		tmpl := `{"type":"message_delta","delta":{"stop_reason":"","stop_sequence":null},"usage":{"input_tokens":0,"output_tokens":0}}`
		tmpl, _ = sjson.Set(tmpl, "delta.stop_reason", stopReason)
		if ev.Usage.InputTokens != nil {
			tmpl, _ = sjson.Set(tmpl, "usage.input_tokens", *ev.Usage.InputTokens)
		}
		if ev.Usage.OutputTokens != nil {
			tmpl, _ = sjson.Set(tmpl, "usage.output_tokens", *ev.Usage.OutputTokens)
		}
		return []Chunk{
			sseFrame("message_delta", tmpl),
			sseFrame("message_stop", `{"type":"message_stop"}`),
		}
	}
	return nil
}

func (e *ClaudeEncoder) Finalize() []Chunk {
	var out []Chunk
	for idx := range e.openBlocks {
		tmpl, _ := sjson.Set(`{"type":"content_block_stop","index":0}`, "index", idx)
		out = append(out, sseFrame("content_block_stop", tmpl))
		delete(e.openBlocks, idx)
	}
	return out
}

func decodeClaudeUsage(u gjson.Result) wire.Usage {
	var out wire.Usage
	if v := u.Get("input_tokens"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("output_tokens"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	return out
}
