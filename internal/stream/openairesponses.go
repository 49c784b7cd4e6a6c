package stream

import (
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIResponsesDecoder decodes Responses API streaming events into
// neutral events. Grounded directly on the teacher's
// internal/translator/codex/claude/codex_claude_response.go
// ConvertCodexResponseToClaude, which already consumes this exact format
// (Codex's backend is the Responses API) — output_index is reused verbatim
// as the neutral Index.
type OpenAIResponsesDecoder struct {
	toolCallID map[int64]string // output_index -> call_id of each function_call seen; non-empty at response.completed means StopToolUse
}

func NewOpenAIResponsesDecoder() *OpenAIResponsesDecoder {
	return &OpenAIResponsesDecoder{toolCallID: map[int64]string{}}
}

func (d *OpenAIResponsesDecoder) Decode(raw []byte) []Event {
	raw = stripDataPrefix(raw)
	if len(raw) == 0 {
		return nil
	}
	root := gjson.ParseBytes(raw)
	idx := root.Get("output_index").Int()
	switch root.Get("type").String() {
	case "response.created":
		return []Event{{Kind: EvMessageStart, Model: root.Get("response.model").String(), ID: root.Get("response.id").String()}}
	case "response.output_item.added":
		item := root.Get("item")
		if item.Get("type").String() == "function_call" {
			callID := item.Get("call_id").String()
			d.toolCallID[idx] = callID
			return []Event{{Kind: EvToolStart, Index: int(idx), ToolID: callID, ToolName: item.Get("name").String()}}
		}
		return nil
	case "response.output_text.delta":
		return []Event{{Kind: EvTextDelta, Index: int(idx), Text: root.Get("delta").String()}}
	case "response.reasoning_summary_text.delta":
		return []Event{{Kind: EvThinkingDelta, Index: int(idx), Text: root.Get("delta").String()}}
	case "response.function_call_arguments.delta":
		return []Event{{Kind: EvToolDelta, Index: int(idx), PartialJSON: root.Get("delta").String()}}
	case "response.output_item.done":
		item := root.Get("item")
		if item.Get("type").String() == "function_call" {
			return []Event{{Kind: EvToolStop, Index: int(idx)}}
		}
		return []Event{{Kind: EvContentStop, Index: int(idx)}}
	case "response.content_part.done":
		return []Event{{Kind: EvContentStop, Index: int(idx)}}
	case "response.completed":
		ev := Event{Kind: EvMessageStop, StopReason: wire.StopEndTurn}
		if len(d.toolCallID) > 0 {
			ev.StopReason = wire.StopToolUse
		}
		ev.Usage = decodeResponsesStreamUsage(root.Get("response.usage"))
		return []Event{ev}
	}
	return nil
}

func decodeResponsesStreamUsage(u gjson.Result) wire.Usage {
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

// OpenAIResponsesEncoder renders neutral events into Responses API
// streaming events.
type OpenAIResponsesEncoder struct {
	model, id string
	toolID    map[int]string
	itemAdded map[int]bool
}

func NewOpenAIResponsesEncoder() *OpenAIResponsesEncoder {
	return &OpenAIResponsesEncoder{toolID: map[int]string{}, itemAdded: map[int]bool{}}
}

func (e *OpenAIResponsesEncoder) Encode(ev Event) []Chunk {
	switch ev.Kind {
	case EvMessageStart:
		e.model, e.id = ev.Model, ev.ID
		tmpl := `{"type":"response.created","response":{"id":"","model":""}}`
		tmpl, _ = sjson.Set(tmpl, "response.id", e.id)
		tmpl, _ = sjson.Set(tmpl, "response.model", e.model)
		return []Chunk{{Event: "response.created", Data: tmpl}}
	case EvTextDelta:
		var out []Chunk
		if !e.itemAdded[ev.Index] {
			e.itemAdded[ev.Index] = true
			tmpl, _ := sjson.Set(`{"type":"response.output_item.added","output_index":0,"item":{"type":"message","role":"assistant"}}`, "output_index", ev.Index)
			out = append(out, Chunk{Event: "response.output_item.added", Data: tmpl})
		}
		tmpl, _ := sjson.Set(`{"type":"response.output_text.delta","output_index":0,"delta":""}`, "output_index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "delta", ev.Text)
		return append(out, Chunk{Event: "response.output_text.delta", Data: tmpl})
	case EvThinkingDelta:
		var out []Chunk
		if !e.itemAdded[ev.Index] {
			e.itemAdded[ev.Index] = true
			tmpl, _ := sjson.Set(`{"type":"response.output_item.added","output_index":0,"item":{"type":"reasoning"}}`, "output_index", ev.Index)
			out = append(out, Chunk{Event: "response.output_item.added", Data: tmpl})
		}
		tmpl, _ := sjson.Set(`{"type":"response.reasoning_summary_text.delta","output_index":0,"delta":""}`, "output_index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "delta", ev.Text)
		return append(out, Chunk{Event: "response.reasoning_summary_text.delta", Data: tmpl})
	case EvToolStart:
		e.toolID[ev.Index] = ev.ToolID
		tmpl := `{"type":"response.output_item.added","output_index":0,"item":{"type":"function_call","call_id":"","name":""}}`
		tmpl, _ = sjson.Set(tmpl, "output_index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "item.call_id", ev.ToolID)
		tmpl, _ = sjson.Set(tmpl, "item.name", ev.ToolName)
		return []Chunk{{Event: "response.output_item.added", Data: tmpl}}
	case EvToolDelta:
		tmpl, _ := sjson.Set(`{"type":"response.function_call_arguments.delta","output_index":0,"delta":""}`, "output_index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "delta", ev.PartialJSON)
		return []Chunk{{Event: "response.function_call_arguments.delta", Data: tmpl}}
	case EvToolStop, EvContentStop:
		itemType := "message"
		if ev.Kind == EvToolStop {
			itemType = "function_call"
		}
		tmpl, _ := sjson.Set(`{"type":"response.output_item.done","output_index":0,"item":{"type":""}}`, "output_index", ev.Index)
		tmpl, _ = sjson.Set(tmpl, "item.type", itemType)
		return []Chunk{{Event: "response.output_item.done", Data: tmpl}}
	case EvMessageStop:
		status := "completed"
		tmpl := `{"type":"response.completed","response":{"id":"","status":"","usage":{"input_tokens":0,"output_tokens":0}}}`
		tmpl, _ = sjson.Set(tmpl, "response.id", e.id)
		if ev.StopReason == wire.StopMaxTokens {
			status = "incomplete"
		}
		tmpl, _ = sjson.Set(tmpl, "response.status", status)
		if ev.Usage.InputTokens != nil {
			tmpl, _ = sjson.Set(tmpl, "response.usage.input_tokens", *ev.Usage.InputTokens)
		}
		if ev.Usage.OutputTokens != nil {
			tmpl, _ = sjson.Set(tmpl, "response.usage.output_tokens", *ev.Usage.OutputTokens)
		}
		return []Chunk{{Event: "response.completed", Data: tmpl}}
	}
	return nil
}

func (e *OpenAIResponsesEncoder) Finalize() []Chunk { return nil }
