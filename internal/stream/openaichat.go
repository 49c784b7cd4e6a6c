package stream

import (
	"github.com/module-gw/gproxy/internal/transform/wire"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const chatTextIndex = 0

// OpenAIChatDecoder decodes Chat Completions streaming chunks into neutral
// events. Tool call argument fragments carry the Chat Completions
// "tool_calls[].index" field directly as the neutral Index, offset past
// chatTextIndex so it never collides with the text content block.
type OpenAIChatDecoder struct {
	startSent bool
	toolIDs   map[int64]bool
}

func NewOpenAIChatDecoder() *OpenAIChatDecoder {
	return &OpenAIChatDecoder{toolIDs: map[int64]bool{}}
}

func (d *OpenAIChatDecoder) Decode(raw []byte) []Event {
	raw = stripDataPrefix(raw)
	if len(raw) == 0 {
		return nil
	}
	root := gjson.ParseBytes(raw)
	var out []Event
	if !d.startSent {
		d.startSent = true
		out = append(out, Event{Kind: EvMessageStart, Model: root.Get("model").String(), ID: root.Get("id").String()})
	}
	choice := root.Get("choices.0")
	delta := choice.Get("delta")
	if c := delta.Get("content"); c.Exists() && c.String() != "" {
		out = append(out, Event{Kind: EvTextDelta, Index: chatTextIndex, Text: c.String()})
	}
	if r := delta.Get("reasoning_content"); r.Exists() && r.String() != "" {
		out = append(out, Event{Kind: EvThinkingDelta, Index: chatTextIndex + 1, Text: r.String()})
	}
	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		idx := chatToolIndex(tc.Get("index").Int())
		if id := tc.Get("id").String(); id != "" && !d.toolIDs[idx] {
			d.toolIDs[idx] = true
			out = append(out, Event{Kind: EvToolStart, Index: int(idx), ToolID: id, ToolName: tc.Get("function.name").String()})
		}
		if args := tc.Get("function.arguments"); args.Exists() {
			out = append(out, Event{Kind: EvToolDelta, Index: int(idx), PartialJSON: args.String()})
		}
		return true
	})
	if fr := choice.Get("finish_reason"); fr.Exists() && fr.String() != "" {
		for idx := range d.toolIDs {
			out = append(out, Event{Kind: EvToolStop, Index: int(idx)})
		}
		ev := Event{Kind: EvMessageStop, StopReason: decodeChatFinish(fr.String())}
		ev.Usage = decodeChatStreamUsage(root.Get("usage"))
		out = append(out, ev)
	}
	return out
}

func chatToolIndex(i int64) int64 { return chatTextIndex + 2 + i }

func decodeChatFinish(s string) wire.StopReason {
	switch s {
	case "length":
		return wire.StopMaxTokens
	case "tool_calls":
		return wire.StopToolUse
	case "content_filter":
		return wire.StopContentFilter
	default:
		return wire.StopEndTurn
	}
}

func decodeChatStreamUsage(u gjson.Result) wire.Usage {
	var out wire.Usage
	if v := u.Get("prompt_tokens"); v.Exists() {
		n := v.Int()
		out.InputTokens = &n
	}
	if v := u.Get("completion_tokens"); v.Exists() {
		n := v.Int()
		out.OutputTokens = &n
	}
	return out
}

// OpenAIChatEncoder renders neutral events into Chat Completions streaming
// chunks.
type OpenAIChatEncoder struct {
	id, model  string
	toolSlot   map[int]int64 // neutral Index -> tool_calls[].index
	nextSlot   int64
}

func NewOpenAIChatEncoder() *OpenAIChatEncoder {
	return &OpenAIChatEncoder{toolSlot: map[int]int64{}}
}

func chatChunkBase(id, model string) string {
	out := `{"id":"","object":"chat.completion.chunk","model":"","choices":[{"index":0,"delta":{}}]}`
	out, _ = sjson.Set(out, "id", id)
	out, _ = sjson.Set(out, "model", model)
	return out
}

func (e *OpenAIChatEncoder) Encode(ev Event) []Chunk {
	switch ev.Kind {
	case EvMessageStart:
		e.id, e.model = ev.ID, ev.Model
		out := chatChunkBase(e.id, e.model)
		out, _ = sjson.Set(out, "choices.0.delta.role", "assistant")
		return []Chunk{{Data: out}}
	case EvTextDelta:
		out := chatChunkBase(e.id, e.model)
		out, _ = sjson.Set(out, "choices.0.delta.content", ev.Text)
		return []Chunk{{Data: out}}
	case EvThinkingDelta:
		out := chatChunkBase(e.id, e.model)
		out, _ = sjson.Set(out, "choices.0.delta.reasoning_content", ev.Text)
		return []Chunk{{Data: out}}
	case EvToolStart:
		slot, ok := e.toolSlot[ev.Index]
		if !ok {
			slot = e.nextSlot
			e.nextSlot++
			e.toolSlot[ev.Index] = slot
		}
		out := chatChunkBase(e.id, e.model)
		tc := map[string]any{"index": slot, "id": ev.ToolID, "type": "function", "function": map[string]any{"name": ev.ToolName, "arguments": ""}}
		out, _ = sjson.SetRaw(out, "choices.0.delta.tool_calls", mustMarshalOne(tc))
		return []Chunk{{Data: out}}
	case EvToolDelta:
		slot := e.toolSlot[ev.Index]
		out := chatChunkBase(e.id, e.model)
		tc := map[string]any{"index": slot, "function": map[string]any{"arguments": ev.PartialJSON}}
		out, _ = sjson.SetRaw(out, "choices.0.delta.tool_calls", mustMarshalOne(tc))
		return []Chunk{{Data: out}}
	case EvToolStop:
		return nil
	case EvMessageStop:
		finish := "stop"
		switch ev.StopReason {
		case wire.StopMaxTokens:
			finish = "length"
		case wire.StopToolUse:
			finish = "tool_calls"
		case wire.StopContentFilter:
			finish = "content_filter"
		}
		out := chatChunkBase(e.id, e.model)
		out, _ = sjson.Delete(out, "choices.0.delta")
		out, _ = sjson.SetRaw(out, "choices.0.delta", "{}")
		out, _ = sjson.Set(out, "choices.0.finish_reason", finish)
		if ev.Usage.InputTokens != nil {
			out, _ = sjson.Set(out, "usage.prompt_tokens", *ev.Usage.InputTokens)
		}
		if ev.Usage.OutputTokens != nil {
			out, _ = sjson.Set(out, "usage.completion_tokens", *ev.Usage.OutputTokens)
		}
		return []Chunk{{Data: out}}
	}
	return nil
}

func (e *OpenAIChatEncoder) Finalize() []Chunk { return nil }

func mustMarshalOne(v map[string]any) string {
	out, _ := sjson.SetRaw(`[{}]`, "0", mustMarshalMap(v))
	return out
}
